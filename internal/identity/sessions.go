package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dinepoint/dinepoint/internal/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ErrSessionNotFound reports an unknown, revoked or expired session.
var ErrSessionNotFound = errors.New("identity: session not found")

// SessionStore keeps the server side of issued tokens. Deleting a session
// revokes every token that carries its id.
type SessionStore interface {
	Save(ctx context.Context, s models.Session) error
	Lookup(ctx context.Context, id string) (models.Session, error)
	Revoke(ctx context.Context, id string) error
	RevokeAll(ctx context.Context, account models.AccountRef) error
}

// DBSessionStore keeps sessions in the relational store.
type DBSessionStore struct {
	db *gorm.DB
}

// NewDBSessionStore constructs a DBSessionStore.
func NewDBSessionStore(db *gorm.DB) *DBSessionStore {
	return &DBSessionStore{db: db}
}

func (s *DBSessionStore) Save(ctx context.Context, session models.Session) error {
	if errCreate := s.db.WithContext(ctx).Create(&session).Error; errCreate != nil {
		return fmt.Errorf("identity: save session: %w", errCreate)
	}
	return nil
}

func (s *DBSessionStore) Lookup(ctx context.Context, id string) (models.Session, error) {
	var session models.Session
	errFind := s.db.WithContext(ctx).Where("id = ?", id).Take(&session).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return models.Session{}, ErrSessionNotFound
	}
	if errFind != nil {
		return models.Session{}, fmt.Errorf("identity: lookup session: %w", errFind)
	}
	return session, nil
}

func (s *DBSessionStore) Revoke(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Session{})
	if res.Error != nil {
		return fmt.Errorf("identity: revoke session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *DBSessionStore) RevokeAll(ctx context.Context, account models.AccountRef) error {
	if errDelete := s.db.WithContext(ctx).
		Where("account_id = ? AND kind = ?", account.ID, account.Kind).
		Delete(&models.Session{}).Error; errDelete != nil {
		return fmt.Errorf("identity: revoke sessions: %w", errDelete)
	}
	return nil
}

// RedisSessionStore keeps sessions in redis with a TTL matching the token
// expiry. Each account also has a set of its session ids so a password reset
// can revoke all of them.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisSessionStore constructs a RedisSessionStore using keys under prefix.
func NewRedisSessionStore(client redis.UniversalClient, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = "dinepoint:"
	}
	return &RedisSessionStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisSessionStore) sessionKey(id string) string {
	return s.prefix + "session:" + id
}

func (s *RedisSessionStore) accountKey(account models.AccountRef) string {
	return s.prefix + "account-sessions:" + string(account.Kind) + ":" + strconv.FormatUint(account.ID, 10)
}

func (s *RedisSessionStore) Save(ctx context.Context, session models.Session) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("identity: save session: already expired")
	}
	payload, errMarshal := json.Marshal(session)
	if errMarshal != nil {
		return fmt.Errorf("identity: encode session: %w", errMarshal)
	}
	account := models.AccountRef{ID: session.AccountID, Kind: session.Kind}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessionKey(session.ID), payload, ttl)
	pipe.SAdd(ctx, s.accountKey(account), session.ID)
	pipe.Expire(ctx, s.accountKey(account), ttl)
	if _, errExec := pipe.Exec(ctx); errExec != nil {
		return fmt.Errorf("identity: save session: %w", errExec)
	}
	return nil
}

func (s *RedisSessionStore) Lookup(ctx context.Context, id string) (models.Session, error) {
	payload, errGet := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(errGet, redis.Nil) {
		return models.Session{}, ErrSessionNotFound
	}
	if errGet != nil {
		return models.Session{}, fmt.Errorf("identity: lookup session: %w", errGet)
	}
	var session models.Session
	if errUnmarshal := json.Unmarshal(payload, &session); errUnmarshal != nil {
		return models.Session{}, fmt.Errorf("identity: decode session: %w", errUnmarshal)
	}
	return session, nil
}

func (s *RedisSessionStore) Revoke(ctx context.Context, id string) error {
	session, errLookup := s.Lookup(ctx, id)
	if errLookup != nil {
		return errLookup
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.sessionKey(id))
	pipe.SRem(ctx, s.accountKey(models.AccountRef{ID: session.AccountID, Kind: session.Kind}), id)
	if _, errExec := pipe.Exec(ctx); errExec != nil {
		return fmt.Errorf("identity: revoke session: %w", errExec)
	}
	return nil
}

func (s *RedisSessionStore) RevokeAll(ctx context.Context, account models.AccountRef) error {
	ids, errMembers := s.client.SMembers(ctx, s.accountKey(account)).Result()
	if errMembers != nil && !errors.Is(errMembers, redis.Nil) {
		return fmt.Errorf("identity: list sessions: %w", errMembers)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.sessionKey(id))
	}
	keys = append(keys, s.accountKey(account))
	if errDel := s.client.Del(ctx, keys...).Err(); errDel != nil {
		return fmt.Errorf("identity: revoke sessions: %w", errDel)
	}
	return nil
}
