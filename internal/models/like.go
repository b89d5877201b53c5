package models

// Like records that Liker currently likes the message PostID.
// At most one Like exists per (PostID, Liker) pair.
type Like struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement:false" json:"id"`
	PostID uint64 `gorm:"not null" json:"post_id"`
	Liker  string `gorm:"not null;size:64;index:idx_likes_liker" json:"liker"`
}

// LikeToggle describes the outcome of a like call.
type LikeToggle struct {
	PostID uint64 `json:"post_id"`
	Liker  string `json:"liker"`
	LikeID uint64 `json:"like_id"`
	Liked  bool   `json:"liked"`
}
