package repository

import (
	"context"
	"errors"
	"fmt"

	"talk/internal/models"
	"talk/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on top of a gorm database.
//
// Inside Transaction, GetForUpdate and the key sequence reads take row locks
// (SELECT ... FOR UPDATE), so concurrent operations touching the same rows
// run one after the other on pooled postgres connections. The
// sqlite dialect drops locking clauses; sqlite serialises writers itself.
type GormStore struct {
	db   *gorm.DB
	lock bool
}

// NewGormStore creates a store backed by db. The schema must already be migrated.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Messages() MessageRepository {
	return &messageRepository{db: s.db, lock: s.lock, log: observability.NewRepoLogger("messages")}
}

func (s *GormStore) Likes() LikeRepository {
	return &likeRepository{db: s.db, lock: s.lock, log: observability.NewRepoLogger("likes")}
}

func (s *GormStore) Users() UserRepository {
	return &userRepository{db: s.db, lock: s.lock, log: observability.NewRepoLogger("users")}
}

// Transaction runs fn inside a database transaction.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, lock: true})
	})
}

// forUpdate adds a FOR UPDATE clause when lock is set.
func forUpdate(db *gorm.DB, lock bool) *gorm.DB {
	if !lock {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	default:
		return err
	}
}

// nextKey returns the stored sequence value, or MAX(id)+1 of table when the
// sequence row has not been written yet. With lock set the sequence row is
// created if missing and then locked until the transaction ends.
func nextKey(ctx context.Context, db *gorm.DB, name string, model any, lock bool) (uint64, error) {
	seq, err := readSequence(ctx, db, name, lock)
	if err == nil {
		return seq.NextKey, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	seed, err := seedKey(ctx, db, model)
	if err != nil {
		return 0, err
	}
	if !lock {
		return seed, nil
	}

	// A concurrent transaction may insert the row first; ON CONFLICT waits
	// for it and the locked read below then sees its value.
	created := models.KeySequence{Name: name, NextKey: seed}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&created).Error; err != nil {
		return 0, fmt.Errorf("create %s sequence: %w", name, err)
	}
	seq, err = readSequence(ctx, db, name, lock)
	if err != nil {
		return 0, err
	}
	return seq.NextKey, nil
}

func readSequence(ctx context.Context, db *gorm.DB, name string, lock bool) (*models.KeySequence, error) {
	var seq models.KeySequence
	if err := forUpdate(db.WithContext(ctx), lock).Where("name = ?", name).First(&seq).Error; err != nil {
		return nil, err
	}
	return &seq, nil
}

// seedKey is MAX(id)+1 of the table, or 0 when it is empty.
func seedKey(ctx context.Context, db *gorm.DB, model any) (uint64, error) {
	var maxID uint64
	if err := db.WithContext(ctx).Model(model).Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error; err != nil {
		return 0, err
	}
	if maxID == 0 {
		return 0, nil
	}
	return maxID + 1, nil
}

// bumpSequence raises the sequence past id.
func bumpSequence(ctx context.Context, db *gorm.DB, name string, model any, id uint64, lock bool) error {
	next, err := nextKey(ctx, db, name, model, lock)
	if err != nil {
		return err
	}
	if id+1 > next {
		next = id + 1
	}
	seq := models.KeySequence{Name: name, NextKey: next}
	return db.WithContext(ctx).Save(&seq).Error
}

// messageRepository implements MessageRepository
type messageRepository struct {
	db   *gorm.DB
	lock bool
	log  *observability.RepoLogger
}

func (r *messageRepository) Get(ctx context.Context, id uint64) (*models.Message, error) {
	return r.get(ctx, id, false)
}

func (r *messageRepository) GetForUpdate(ctx context.Context, id uint64) (*models.Message, error) {
	return r.get(ctx, id, r.lock)
}

func (r *messageRepository) get(ctx context.Context, id uint64, lock bool) (*models.Message, error) {
	var msg models.Message
	if err := forUpdate(r.db.WithContext(ctx), lock).Where("id = ?", id).First(&msg).Error; err != nil {
		return nil, translate(err)
	}
	return &msg, nil
}

func (r *messageRepository) Create(ctx context.Context, msg *models.Message) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return translate(err)
		}
		return bumpSequence(ctx, tx, models.SequenceMessages, &models.Message{}, msg.ID, r.lock)
	})
	if err != nil {
		r.log.LogError(ctx, err, "create")
		return err
	}
	r.log.LogCreate(ctx, map[string]any{"id": msg.ID, "reply_to": msg.ReplyTo, "author": msg.Author})
	return nil
}

func (r *messageRepository) Save(ctx context.Context, msg *models.Message) error {
	result := r.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", msg.ID).Updates(map[string]any{
		"reply_to":   msg.ReplyTo,
		"author":     msg.Author,
		"content":    msg.Content,
		"like_count": msg.LikeCount,
	})
	if result.Error != nil {
		r.log.LogError(ctx, result.Error, "update")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	r.log.LogUpdate(ctx, map[string]any{"id": msg.ID, "like_count": msg.LikeCount})
	return nil
}

func (r *messageRepository) ListByReplyTo(ctx context.Context, replyTo uint64) ([]*models.Message, error) {
	var msgs []*models.Message
	err := r.db.WithContext(ctx).
		Where("reply_to = ?", replyTo).
		Order("id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("list replies to %d: %w", replyTo, err)
	}
	return msgs, nil
}

func (r *messageRepository) NextID(ctx context.Context) (uint64, error) {
	return nextKey(ctx, r.db, models.SequenceMessages, &models.Message{}, r.lock)
}

// likeRepository implements LikeRepository
type likeRepository struct {
	db   *gorm.DB
	lock bool
	log  *observability.RepoLogger
}

func (r *likeRepository) Get(ctx context.Context, id uint64) (*models.Like, error) {
	var like models.Like
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&like).Error; err != nil {
		return nil, translate(err)
	}
	return &like, nil
}

func (r *likeRepository) Create(ctx context.Context, like *models.Like) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(like).Error; err != nil {
			return translate(err)
		}
		return bumpSequence(ctx, tx, models.SequenceLikes, &models.Like{}, like.ID, r.lock)
	})
	if err != nil {
		r.log.LogError(ctx, err, "create")
		return err
	}
	r.log.LogCreate(ctx, map[string]any{"id": like.ID, "post_id": like.PostID, "liker": like.Liker})
	return nil
}

func (r *likeRepository) Delete(ctx context.Context, id uint64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Like{})
	if result.Error != nil {
		r.log.LogError(ctx, result.Error, "delete")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	r.log.LogDelete(ctx, map[string]any{"id": id})
	return nil
}

func (r *likeRepository) ListByLiker(ctx context.Context, liker string) ([]*models.Like, error) {
	var likes []*models.Like
	err := r.db.WithContext(ctx).
		Where("liker = ?", liker).
		Order("id ASC").
		Find(&likes).Error
	if err != nil {
		return nil, fmt.Errorf("list likes by %s: %w", liker, err)
	}
	return likes, nil
}

func (r *likeRepository) NextID(ctx context.Context) (uint64, error) {
	return nextKey(ctx, r.db, models.SequenceLikes, &models.Like{}, r.lock)
}

// userRepository implements UserRepository
type userRepository struct {
	db   *gorm.DB
	lock bool
	log  *observability.RepoLogger
}

func (r *userRepository) Get(ctx context.Context, identity string) (*models.UserAggregate, error) {
	return r.get(ctx, identity, false)
}

func (r *userRepository) GetForUpdate(ctx context.Context, identity string) (*models.UserAggregate, error) {
	return r.get(ctx, identity, r.lock)
}

func (r *userRepository) get(ctx context.Context, identity string, lock bool) (*models.UserAggregate, error) {
	var user models.UserAggregate
	if err := forUpdate(r.db.WithContext(ctx), lock).Where("identity = ?", identity).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.UserAggregate) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		err = translate(err)
		r.log.LogError(ctx, err, "create")
		return err
	}
	r.log.LogCreate(ctx, map[string]any{"identity": user.Identity})
	return nil
}

func (r *userRepository) Save(ctx context.Context, user *models.UserAggregate) error {
	result := r.db.WithContext(ctx).Model(&models.UserAggregate{}).Where("identity = ?", user.Identity).Updates(map[string]any{
		"liked_count":   user.LikedCount,
		"replied_count": user.RepliedCount,
		"posted_count":  user.PostedCount,
	})
	if result.Error != nil {
		r.log.LogError(ctx, result.Error, "update")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	r.log.LogUpdate(ctx, map[string]any{
		"identity":      user.Identity,
		"liked_count":   user.LikedCount,
		"replied_count": user.RepliedCount,
		"posted_count":  user.PostedCount,
	})
	return nil
}
