package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const MessageCollection = "messages"

// Message is the durable chat record. Exactly one of Text/Image is set at
// creation; Seen only ever flips false -> true.
type Message struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	SenderID   string             `bson:"sender_id" json:"senderId"`
	ReceiverID string             `bson:"receiver_id" json:"receiverId"`
	Text       string             `bson:"text,omitempty" json:"text,omitempty"`
	Image      string             `bson:"image,omitempty" json:"image,omitempty"`
	Seen       bool               `bson:"seen" json:"seen"`
	CreatedAt  time.Time          `bson:"created_at" json:"createdAt"`
}
