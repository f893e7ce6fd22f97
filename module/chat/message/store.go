package message

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	chatmodel "QChat/module/chat/model"
	"QChat/tools/errs"
)

// MongoStore owns the message collection. All seen-flag mutations go through
// filtered updates so concurrent sends can never be marked by a stale
// read-then-write.
type MongoStore struct {
	MsgColl *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{MsgColl: db.Collection(chatmodel.MessageCollection)}
}

func (s *MongoStore) Insert(ctx context.Context, m *chatmodel.Message) error {
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if _, err := s.MsgColl.InsertOne(ctx, m); err != nil {
		return errs.ErrInternal.WrapMsg("insert message", "err", err)
	}
	return nil
}

// FindConversation returns both directions between a and b, oldest first.
func (s *MongoStore) FindConversation(ctx context.Context, a, b string) ([]chatmodel.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": a, "receiver_id": b},
		bson.M{"sender_id": b, "receiver_id": a},
	}}
	cur, err := s.MsgColl.Find(ctx, filter, options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		return nil, errs.ErrInternal.WrapMsg("find conversation", "err", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	out := make([]chatmodel.Message, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.ErrInternal.WrapMsg("decode conversation", "err", err)
	}
	return out, nil
}

// MarkConversationSeen flips every unseen message from sender to receiver in
// one filtered bulk update and reports how many documents actually changed.
// The seen=false filter is the compare half of the compare-and-set: a message
// inserted after this statement executes is untouched.
func (s *MongoStore) MarkConversationSeen(ctx context.Context, senderID, receiverID string) (int64, error) {
	res, err := s.MsgColl.UpdateMany(ctx,
		bson.M{"sender_id": senderID, "receiver_id": receiverID, "seen": false},
		bson.M{"$set": bson.M{"seen": true}},
	)
	if err != nil {
		return 0, errs.ErrInternal.WrapMsg("mark conversation seen", "err", err)
	}
	return res.ModifiedCount, nil
}

// MarkSeen flips a single message and returns the updated record along with
// whether this call performed the flip (false when it was already seen).
func (s *MongoStore) MarkSeen(ctx context.Context, id string) (*chatmodel.Message, bool, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false, errs.ErrNotFound.WrapMsg("bad message id", "id", id)
	}
	var before chatmodel.Message
	err = s.MsgColl.FindOneAndUpdate(ctx,
		bson.M{"_id": objID},
		bson.M{"$set": bson.M{"seen": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, errs.ErrNotFound.WrapMsg("unknown message", "id", id)
	}
	if err != nil {
		return nil, false, errs.ErrInternal.WrapMsg("mark seen", "id", id, "err", err)
	}
	flipped := !before.Seen
	before.Seen = true
	return &before, flipped, nil
}

// CountUnseen groups the viewer's unseen messages by sender. Peers with zero
// unseen are simply absent from the map.
func (s *MongoStore) CountUnseen(ctx context.Context, viewerID string) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"receiver_id": viewerID, "seen": false}}},
		bson.D{{Key: "$group", Value: bson.M{"_id": "$sender_id", "count": bson.M{"$sum": 1}}}},
	}
	cur, err := s.MsgColl.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errs.ErrInternal.WrapMsg("count unseen", "err", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	out := make(map[string]int64)
	for cur.Next(ctx) {
		var row struct {
			SenderID string `bson:"_id"`
			Count    int64  `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, errs.ErrInternal.WrapMsg("decode unseen row", "err", err)
		}
		out[row.SenderID] = row.Count
	}
	if err := cur.Err(); err != nil {
		return nil, errs.ErrInternal.WrapMsg("iterate unseen rows", "err", err)
	}
	return out, nil
}
