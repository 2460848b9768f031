package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"evcs/internal/config"
	"evcs/models"

	"github.com/redis/go-redis/v9"
)

const redisOperationTimeout = 5 * time.Second

// RedisCommandQueue keeps undelivered remote commands in one redis list per charge point
type RedisCommandQueue struct {
	client *redis.Client
	prefix string
}

func NewRedisCommandQueue(conf *config.Config) (*RedisCommandQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisOperationTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisCommandQueue{client: client, prefix: conf.Redis.KeyPrefix}, nil
}

func (q *RedisCommandQueue) key(chargePointId string) string {
	return q.prefix + chargePointId
}

func (q *RedisCommandQueue) Enqueue(chargePointId string, command *models.QueuedCommand) error {
	data, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOperationTimeout)
	defer cancel()
	return q.client.RPush(ctx, q.key(chargePointId), data).Err()
}

// Drain reads and deletes the list in one MULTI/EXEC block.
// Entries that fail to decode are skipped and reported in the returned error along with the decoded ones.
func (q *RedisCommandQueue) Drain(chargePointId string) ([]*models.QueuedCommand, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOperationTimeout)
	defer cancel()
	key := q.key(chargePointId)
	var items *redis.StringSliceCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		items = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("drain %s: %w", key, err)
	}
	commands := make([]*models.QueuedCommand, 0, len(items.Val()))
	var decodeErrors []error
	for i, item := range items.Val() {
		var command models.QueuedCommand
		if err = json.Unmarshal([]byte(item), &command); err != nil {
			decodeErrors = append(decodeErrors, fmt.Errorf("skipped queued command %d of %s: %w", i, key, err))
			continue
		}
		commands = append(commands, &command)
	}
	return commands, errors.Join(decodeErrors...)
}

// Requeue pushes to the head in reverse so the list starts with commands in their original order
func (q *RedisCommandQueue) Requeue(chargePointId string, commands []*models.QueuedCommand) error {
	if len(commands) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(commands))
	for i := len(commands) - 1; i >= 0; i-- {
		data, err := json.Marshal(commands[i])
		if err != nil {
			return fmt.Errorf("marshal command: %w", err)
		}
		values = append(values, data)
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOperationTimeout)
	defer cancel()
	return q.client.LPush(ctx, q.key(chargePointId), values...).Err()
}

func (q *RedisCommandQueue) Close() error {
	return q.client.Close()
}
