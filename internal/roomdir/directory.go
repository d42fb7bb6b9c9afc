package roomdir

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"relay/internal/models"
	"relay/internal/utils"
)

// ErrNotFound is returned when a room id has no directory entry.
var ErrNotFound = errors.New("room not found")

// Directory tracks room metadata in Redis: existence, member count, creation
// time. It is advisory — the in-memory hub stays authoritative for live
// membership, and Redis outages never break the relay path.
type Directory struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDirectory(redisAddr string, ttl time.Duration) *Directory {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	return &Directory{rdb: rdb, ttl: ttl}
}

// NewDirectoryWithClient wires an existing client (used in tests).
func NewDirectoryWithClient(rdb *redis.Client, ttl time.Duration) *Directory {
	return &Directory{rdb: rdb, ttl: ttl}
}

func roomKey(roomID string) string { return "room:" + roomID }

// CreateRoom allocates a collision-resistant room id and registers it.
func (d *Directory) CreateRoom(ctx context.Context) (string, error) {
	roomID := uuid.New().String()
	now := time.Now().Format(time.RFC3339)
	err := d.rdb.HSet(ctx, roomKey(roomID),
		"roomId", roomID,
		"memberCount", 0,
		"createdAt", now,
	).Err()
	if err != nil {
		return "", err
	}
	if err := d.rdb.Expire(ctx, roomKey(roomID), d.ttl).Err(); err != nil {
		utils.GetLogger().Warn("failed to set room TTL",
			zap.String("roomId", roomID), zap.Error(err))
	}
	return roomID, nil
}

// Touch updates a room's member count and refreshes its TTL. Rooms first
// seen via a JOIN (ids minted outside the directory) get an entry here.
func (d *Directory) Touch(ctx context.Context, roomID string, memberCount int) {
	key := roomKey(roomID)
	pipe := d.rdb.Pipeline()
	pipe.HSetNX(ctx, key, "roomId", roomID)
	pipe.HSetNX(ctx, key, "createdAt", time.Now().Format(time.RFC3339))
	pipe.HSet(ctx, key, "memberCount", memberCount)
	pipe.Expire(ctx, key, d.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		utils.GetLogger().Warn("failed to touch room",
			zap.String("roomId", roomID), zap.Error(err))
	}
}

// Status returns the directory view of a room.
func (d *Directory) Status(ctx context.Context, roomID string) (models.RoomStatus, error) {
	fields, err := d.rdb.HGetAll(ctx, roomKey(roomID)).Result()
	if err != nil {
		return models.RoomStatus{}, err
	}
	if len(fields) == 0 {
		return models.RoomStatus{}, ErrNotFound
	}
	count, _ := strconv.Atoi(fields["memberCount"])
	return models.RoomStatus{
		RoomID:      fields["roomId"],
		MemberCount: count,
		CreatedAt:   fields["createdAt"],
	}, nil
}

// Forget drops a room's entry, e.g. when the last member leaves.
func (d *Directory) Forget(ctx context.Context, roomID string) {
	if err := d.rdb.Del(ctx, roomKey(roomID)).Err(); err != nil {
		utils.GetLogger().Warn("failed to forget room",
			zap.String("roomId", roomID), zap.Error(err))
	}
}
