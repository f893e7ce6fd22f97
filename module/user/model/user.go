package model

import "time"

const UserCollection = "users"

// User is the profile record the sidebar lists. Credentials live with the
// auth service; this collection never stores them.
type User struct {
	UserID     string    `bson:"user_id" json:"_id"`
	Nickname   string    `bson:"nickname" json:"fullName"`
	FaceURL    string    `bson:"face_url,omitempty" json:"profilePic,omitempty"`
	Bio        string    `bson:"bio,omitempty" json:"bio,omitempty"`
	CreateTime time.Time `bson:"create_time" json:"createdAt"`
}
