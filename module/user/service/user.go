package service

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	usermodel "QChat/module/user/model"
	"QChat/tools/errs"
)

// Users reads the profile collection maintained by the auth service.
type Users struct {
	Coll *mongo.Collection
}

func NewUsers(db *mongo.Database) *Users {
	return &Users{Coll: db.Collection(usermodel.UserCollection)}
}

// ListOthers returns every known user except the viewer.
func (u *Users) ListOthers(ctx context.Context, viewerID string) ([]usermodel.User, error) {
	cur, err := u.Coll.Find(ctx, bson.M{"user_id": bson.M{"$ne": viewerID}})
	if err != nil {
		return nil, errs.ErrInternal.WrapMsg("list users", "err", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	out := make([]usermodel.User, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.ErrInternal.WrapMsg("decode users", "err", err)
	}
	return out, nil
}
