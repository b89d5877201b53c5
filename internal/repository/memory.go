package repository

import (
	"context"
	"slices"
	"sync"

	"talk/internal/models"
)

type memTables struct {
	messages    map[uint64]models.Message
	byReplyTo   map[uint64]map[uint64]struct{}
	likes       map[uint64]models.Like
	byLiker     map[string]map[uint64]struct{}
	users       map[string]models.UserAggregate
	nextMessage uint64
	nextLike    uint64
}

// MemoryStore is an in-process Store. Every call and every transaction
// holds a single mutex, so operations are applied strictly one at a time.
type MemoryStore struct {
	mu sync.Mutex
	t  *memTables
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{t: &memTables{
		messages:  make(map[uint64]models.Message),
		byReplyTo: make(map[uint64]map[uint64]struct{}),
		likes:     make(map[uint64]models.Like),
		byLiker:   make(map[string]map[uint64]struct{}),
		users:     make(map[string]models.UserAggregate),
	}}
}

func (s *MemoryStore) autocommit() *memTx {
	return &memTx{t: s.t, lock: &s.mu}
}

func (s *MemoryStore) Messages() MessageRepository { return &memMessages{s.autocommit()} }
func (s *MemoryStore) Likes() LikeRepository       { return &memLikes{s.autocommit()} }
func (s *MemoryStore) Users() UserRepository       { return &memUsers{s.autocommit()} }

// Transaction runs fn with exclusive access to the tables. Writes are undone
// in reverse order when fn returns an error or panics.
func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{t: s.t}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return nil
}

// memTx is a view over the tables. Autocommit views (lock != nil) take the
// store mutex per call; transaction views run under the already-held mutex
// and journal an undo step for every write.
type memTx struct {
	t    *memTables
	lock *sync.Mutex
	undo []func()
}

func (v *memTx) Messages() MessageRepository { return &memMessages{v} }
func (v *memTx) Likes() LikeRepository       { return &memLikes{v} }
func (v *memTx) Users() UserRepository       { return &memUsers{v} }

// Transaction on a transaction view joins the enclosing transaction.
func (v *memTx) Transaction(_ context.Context, fn func(tx Store) error) error {
	return fn(v)
}

func (v *memTx) guard() func() {
	if v.lock == nil {
		return func() {}
	}
	v.lock.Lock()
	return v.lock.Unlock
}

func (v *memTx) record(undo func()) {
	if v.lock == nil {
		v.undo = append(v.undo, undo)
	}
}

func (v *memTx) rollback() {
	for i := len(v.undo) - 1; i >= 0; i-- {
		v.undo[i]()
	}
	v.undo = nil
}

func addIndex[K comparable](idx map[K]map[uint64]struct{}, key K, id uint64) {
	set, ok := idx[key]
	if !ok {
		set = make(map[uint64]struct{})
		idx[key] = set
	}
	set[id] = struct{}{}
}

func removeIndex[K comparable](idx map[K]map[uint64]struct{}, key K, id uint64) {
	set, ok := idx[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(idx, key)
	}
}

func sortedKeys(set map[uint64]struct{}) []uint64 {
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

type memMessages struct{ v *memTx }

func (r *memMessages) Get(_ context.Context, id uint64) (*models.Message, error) {
	defer r.v.guard()()
	msg, ok := r.v.t.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &msg, nil
}

// GetForUpdate is Get; transactions already hold the store mutex.
func (r *memMessages) GetForUpdate(ctx context.Context, id uint64) (*models.Message, error) {
	return r.Get(ctx, id)
}

func (r *memMessages) Create(_ context.Context, msg *models.Message) error {
	defer r.v.guard()()
	t := r.v.t
	if _, exists := t.messages[msg.ID]; exists {
		return ErrDuplicateKey
	}
	prevNext := t.nextMessage
	t.messages[msg.ID] = *msg
	addIndex(t.byReplyTo, msg.ReplyTo, msg.ID)
	if msg.ID >= t.nextMessage {
		t.nextMessage = msg.ID + 1
	}
	id, replyTo := msg.ID, msg.ReplyTo
	r.v.record(func() {
		delete(t.messages, id)
		removeIndex(t.byReplyTo, replyTo, id)
		t.nextMessage = prevNext
	})
	return nil
}

func (r *memMessages) Save(_ context.Context, msg *models.Message) error {
	defer r.v.guard()()
	t := r.v.t
	old, ok := t.messages[msg.ID]
	if !ok {
		return ErrNotFound
	}
	t.messages[msg.ID] = *msg
	if old.ReplyTo != msg.ReplyTo {
		removeIndex(t.byReplyTo, old.ReplyTo, msg.ID)
		addIndex(t.byReplyTo, msg.ReplyTo, msg.ID)
	}
	newReplyTo := msg.ReplyTo
	r.v.record(func() {
		t.messages[old.ID] = old
		if old.ReplyTo != newReplyTo {
			removeIndex(t.byReplyTo, newReplyTo, old.ID)
			addIndex(t.byReplyTo, old.ReplyTo, old.ID)
		}
	})
	return nil
}

func (r *memMessages) ListByReplyTo(_ context.Context, replyTo uint64) ([]*models.Message, error) {
	defer r.v.guard()()
	ids := sortedKeys(r.v.t.byReplyTo[replyTo])
	out := make([]*models.Message, 0, len(ids))
	for _, id := range ids {
		msg := r.v.t.messages[id]
		out = append(out, &msg)
	}
	return out, nil
}

func (r *memMessages) NextID(context.Context) (uint64, error) {
	defer r.v.guard()()
	return r.v.t.nextMessage, nil
}

type memLikes struct{ v *memTx }

func (r *memLikes) Get(_ context.Context, id uint64) (*models.Like, error) {
	defer r.v.guard()()
	like, ok := r.v.t.likes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &like, nil
}

func (r *memLikes) Create(_ context.Context, like *models.Like) error {
	defer r.v.guard()()
	t := r.v.t
	if _, exists := t.likes[like.ID]; exists {
		return ErrDuplicateKey
	}
	prevNext := t.nextLike
	t.likes[like.ID] = *like
	addIndex(t.byLiker, like.Liker, like.ID)
	if like.ID >= t.nextLike {
		t.nextLike = like.ID + 1
	}
	id, liker := like.ID, like.Liker
	r.v.record(func() {
		delete(t.likes, id)
		removeIndex(t.byLiker, liker, id)
		t.nextLike = prevNext
	})
	return nil
}

func (r *memLikes) Delete(_ context.Context, id uint64) error {
	defer r.v.guard()()
	t := r.v.t
	old, ok := t.likes[id]
	if !ok {
		return ErrNotFound
	}
	delete(t.likes, id)
	removeIndex(t.byLiker, old.Liker, id)
	r.v.record(func() {
		t.likes[old.ID] = old
		addIndex(t.byLiker, old.Liker, old.ID)
	})
	return nil
}

func (r *memLikes) ListByLiker(_ context.Context, liker string) ([]*models.Like, error) {
	defer r.v.guard()()
	ids := sortedKeys(r.v.t.byLiker[liker])
	out := make([]*models.Like, 0, len(ids))
	for _, id := range ids {
		like := r.v.t.likes[id]
		out = append(out, &like)
	}
	return out, nil
}

func (r *memLikes) NextID(context.Context) (uint64, error) {
	defer r.v.guard()()
	return r.v.t.nextLike, nil
}

type memUsers struct{ v *memTx }

func (r *memUsers) Get(_ context.Context, identity string) (*models.UserAggregate, error) {
	defer r.v.guard()()
	user, ok := r.v.t.users[identity]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (r *memUsers) GetForUpdate(ctx context.Context, identity string) (*models.UserAggregate, error) {
	return r.Get(ctx, identity)
}

func (r *memUsers) Create(_ context.Context, user *models.UserAggregate) error {
	defer r.v.guard()()
	t := r.v.t
	if _, exists := t.users[user.Identity]; exists {
		return ErrDuplicateKey
	}
	t.users[user.Identity] = *user
	identity := user.Identity
	r.v.record(func() { delete(t.users, identity) })
	return nil
}

func (r *memUsers) Save(_ context.Context, user *models.UserAggregate) error {
	defer r.v.guard()()
	t := r.v.t
	old, ok := t.users[user.Identity]
	if !ok {
		return ErrNotFound
	}
	t.users[user.Identity] = *user
	r.v.record(func() { t.users[old.Identity] = old })
	return nil
}
