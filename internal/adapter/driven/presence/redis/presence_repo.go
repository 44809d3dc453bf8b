package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	onlineSetKey   = "presence:online"
	changesChannel = "presence:changes"

	DefaultTTL = 2 * time.Minute
)

// PresenceRepository shares presence between relay nodes. Each online user
// has a presence:<id> key that expires unless refreshed, and every change is
// published on presence:changes.
type PresenceRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresenceRepository(client *redis.Client, ttl time.Duration) *PresenceRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PresenceRepository{client: client, ttl: ttl}
}

func presenceKey(userID domain.UserID) string {
	return fmt.Sprintf("presence:%s", userID)
}

func (r *PresenceRepository) SetOnline(ctx context.Context, userID domain.UserID) error {
	payload, err := json.Marshal(domain.PresenceChange{User: userID, Online: true})
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, presenceKey(userID), "online", r.ttl)
		pipe.SAdd(ctx, onlineSetKey, userID.String())
		pipe.Publish(ctx, changesChannel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set user online: %w", err)
	}
	return nil
}

func (r *PresenceRepository) SetOffline(ctx context.Context, userID domain.UserID) error {
	payload, err := json.Marshal(domain.PresenceChange{User: userID, Online: false})
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, presenceKey(userID))
		pipe.SRem(ctx, onlineSetKey, userID.String())
		pipe.Publish(ctx, changesChannel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set user offline: %w", err)
	}
	return nil
}

// Refresh keeps the user online (heartbeat).
func (r *PresenceRepository) Refresh(ctx context.Context, userID domain.UserID) error {
	if err := r.client.Expire(ctx, presenceKey(userID), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}

func (r *PresenceRepository) IsOnline(ctx context.Context, userID domain.UserID) (bool, error) {
	exists, err := r.client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}
	return exists > 0, nil
}

// Online lists users whose presence key is still alive. Set members left
// behind by a crashed node are skipped.
func (r *PresenceRepository) Online(ctx context.Context) ([]domain.UserID, error) {
	members, err := r.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get online users: %w", err)
	}

	ids := make([]domain.UserID, 0, len(members))
	for _, m := range members {
		id, err := domain.ParseUserID(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return ids, nil
	}

	cmds := make([]*redis.IntCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.Exists(ctx, presenceKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check online users: %w", err)
	}

	online := ids[:0]
	for i, id := range ids {
		if cmds[i].Val() > 0 {
			online = append(online, id)
		}
	}
	return online, nil
}

func (r *PresenceRepository) Watch(ctx context.Context, fn func(domain.PresenceChange)) error {
	pubsub := r.client.Subscribe(ctx, changesChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to presence changes: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var change domain.PresenceChange
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				log.Warn().Err(err).Msg("Failed to unmarshal presence change")
				continue
			}
			fn(change)
		}
	}
}
