package models

// MaxIdentityLength bounds identities, matching the size of the identity columns.
const MaxIdentityLength = 64

// UserAggregate holds running counters for one identity.
type UserAggregate struct {
	Identity     string `gorm:"primaryKey;size:64" json:"identity"`
	LikedCount   uint32 `gorm:"not null;default:0" json:"liked_count"`
	RepliedCount uint32 `gorm:"not null;default:0" json:"replied_count"`
	PostedCount  uint32 `gorm:"not null;default:0" json:"posted_count"`
}

// TableName keeps the table name aligned with the record set it stores.
func (UserAggregate) TableName() string {
	return "users"
}

// RecordPost bumps the counter matching the kind of message posted.
func (u *UserAggregate) RecordPost(reply bool) {
	if reply {
		u.RepliedCount++
	} else {
		u.PostedCount++
	}
}
