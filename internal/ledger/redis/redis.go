package redis

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/cafebazaar/thumbsup/pkg/thumbsup"
)

const defaultPrefix = "thumbsup"

// Votes are kept as hashes under <prefix>:vote:<id>. Index sets of vote ids
// are maintained per voter, per voteable, per voteable type and globally, and
// every read starts from the narrowest index the filter allows.
type redisLedger struct {
	mu     sync.RWMutex
	client *redis.Client
	prefix string

	// watchHook runs inside the WATCH window of an exclusive insert.
	watchHook func()
}

type Option func(r *redisLedger)

func WithPrefix(prefix string) Option {
	return func(r *redisLedger) {
		r.prefix = prefix
	}
}

func New(client *redis.Client, options ...Option) thumbsup.Ledger {
	result := &redisLedger{
		client: client,
		prefix: defaultPrefix,
	}

	for _, option := range options {
		option(result)
	}

	return result
}

func (r *redisLedger) Insert(ctx context.Context, vote thumbsup.Vote) (thumbsup.VoteID, error) {
	client := r.conn()
	if client == nil {
		return "", thumbsup.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	vote = r.prepare(vote)

	_, err := client.WithContext(ctx).TxPipelined(func(pipe redis.Pipeliner) error {
		r.queueInsert(pipe, vote)
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "insert vote")
	}

	return vote.ID, nil
}

func (r *redisLedger) InsertExclusive(ctx context.Context,
	vote thumbsup.Vote) (thumbsup.VoteID, int64, error) {

	client := r.conn()
	if client == nil {
		return "", 0, thumbsup.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	vote = r.prepare(vote)
	scope := thumbsup.ExclusiveScope(vote)
	voterKey := r.voterKey(vote.Voter)

	var removed int64
	err := client.WithContext(ctx).Watch(func(tx *redis.Tx) error {
		ids, err := tx.SInter(voterKey, r.voteableKey(vote.Voteable)).Result()
		if err != nil {
			return err
		}

		existing, err := r.loadWatched(tx, ids)
		if err != nil {
			return err
		}

		var stale []thumbsup.Vote
		for _, candidate := range existing {
			if scope.Match(candidate) {
				stale = append(stale, candidate)
			}
		}

		if r.watchHook != nil {
			r.watchHook()
		}

		_, err = tx.Pipelined(func(pipe redis.Pipeliner) error {
			r.queueDelete(pipe, stale)
			r.queueInsert(pipe, vote)
			return nil
		})
		if err != nil {
			return err
		}

		removed = int64(len(stale))
		return nil
	}, voterKey)

	if err == redis.TxFailedErr {
		return "", 0, thumbsup.ErrConflict
	}
	if err != nil {
		return "", 0, errors.Wrap(err, "insert exclusive vote")
	}

	return vote.ID, removed, nil
}

func (r *redisLedger) DeleteMatching(ctx context.Context, filter thumbsup.Filter) (int64, error) {
	client := r.conn()
	if client == nil {
		return 0, thumbsup.ErrClosed
	}

	votes, err := r.Find(ctx, filter)
	if err != nil {
		return 0, err
	}
	if len(votes) == 0 {
		return 0, nil
	}

	var deletes []*redis.IntCmd
	_, err = client.WithContext(ctx).TxPipelined(func(pipe redis.Pipeliner) error {
		deletes = r.queueDelete(pipe, votes)
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "delete votes")
	}

	var removed int64
	for _, cmd := range deletes {
		removed += cmd.Val()
	}

	return removed, nil
}

func (r *redisLedger) CountMatching(ctx context.Context, filter thumbsup.Filter) (int64, error) {
	votes, err := r.Find(ctx, filter)
	if err != nil {
		return 0, err
	}

	return int64(len(votes)), nil
}

func (r *redisLedger) Find(ctx context.Context, filter thumbsup.Filter) ([]thumbsup.Vote, error) {
	client := r.conn()
	if client == nil {
		return nil, thumbsup.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	ids, err := r.candidates(client.WithContext(ctx), filter)
	if err != nil {
		return nil, errors.Wrap(err, "read vote index")
	}

	votes, err := r.load(client.WithContext(ctx), ids)
	if err != nil {
		return nil, errors.Wrap(err, "read votes")
	}

	var result []thumbsup.Vote
	for _, vote := range votes {
		if filter.Match(vote) {
			result = append(result, vote)
		}
	}

	return result, nil
}

func (r *redisLedger) AggregateByGroup(ctx context.Context,
	query thumbsup.AggregateQuery) ([]thumbsup.Group, error) {

	votes, err := r.Find(ctx, query.Filter)
	if err != nil {
		return nil, err
	}

	return thumbsup.GroupVotes(votes, query), nil
}

func (r *redisLedger) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		err := r.client.Close()
		r.client = nil

		return err
	}

	return nil
}

func (r *redisLedger) conn() *redis.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.client
}

func (r *redisLedger) candidates(client *redis.Client, filter thumbsup.Filter) ([]string, error) {
	switch {
	case filter.Voter.Complete() && filter.Voteable.Complete():
		return client.SInter(r.voterKey(filter.Voter), r.voteableKey(filter.Voteable)).Result()

	case filter.Voter.Complete():
		return client.SMembers(r.voterKey(filter.Voter)).Result()

	case filter.Voteable.Complete():
		return client.SMembers(r.voteableKey(filter.Voteable)).Result()

	case filter.Voteable.Type != "":
		return client.SMembers(r.typeKey(filter.Voteable.Type)).Result()

	default:
		return client.SMembers(r.allKey()).Result()
	}
}

func (r *redisLedger) load(client *redis.Client, ids []string) ([]thumbsup.Vote, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.StringStringMapCmd, 0, len(ids))
	_, err := client.Pipelined(func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			cmds = append(cmds, pipe.HGetAll(r.voteKey(thumbsup.VoteID(id))))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	hashes := make([]map[string]string, 0, len(cmds))
	for _, cmd := range cmds {
		hashes = append(hashes, cmd.Val())
	}

	return decodeVotes(ids, hashes)
}

// loadWatched reads without MULTI, since EXEC would drop the WATCH guarding
// the exclusive insert.
func (r *redisLedger) loadWatched(tx *redis.Tx, ids []string) ([]thumbsup.Vote, error) {
	hashes := make([]map[string]string, 0, len(ids))

	for _, id := range ids {
		fields, err := tx.HGetAll(r.voteKey(thumbsup.VoteID(id))).Result()
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, fields)
	}

	return decodeVotes(ids, hashes)
}

func (r *redisLedger) prepare(vote thumbsup.Vote) thumbsup.Vote {
	if vote.ID == "" {
		vote.ID = thumbsup.VoteID(uuid.NewString())
	}
	if vote.CreatedAt.IsZero() {
		vote.CreatedAt = time.Now().UTC()
	}

	return vote
}

func (r *redisLedger) queueInsert(pipe redis.Pipeliner, vote thumbsup.Vote) {
	id := string(vote.ID)

	pipe.HMSet(r.voteKey(vote.ID), encodeVote(vote))
	pipe.SAdd(r.voterKey(vote.Voter), id)
	pipe.SAdd(r.voteableKey(vote.Voteable), id)
	pipe.SAdd(r.typeKey(vote.Voteable.Type), id)
	pipe.SAdd(r.allKey(), id)
}

func (r *redisLedger) queueDelete(pipe redis.Pipeliner, votes []thumbsup.Vote) []*redis.IntCmd {
	result := make([]*redis.IntCmd, 0, len(votes))

	for _, vote := range votes {
		id := string(vote.ID)

		result = append(result, pipe.Del(r.voteKey(vote.ID)))
		pipe.SRem(r.voterKey(vote.Voter), id)
		pipe.SRem(r.voteableKey(vote.Voteable), id)
		pipe.SRem(r.typeKey(vote.Voteable.Type), id)
		pipe.SRem(r.allKey(), id)
	}

	return result
}

func (r *redisLedger) voteKey(id thumbsup.VoteID) string {
	return r.prefix + ":vote:" + string(id)
}

func (r *redisLedger) voterKey(ref thumbsup.Ref) string {
	return r.prefix + ":voter:" + escape(ref.Type) + ":" + escape(ref.ID)
}

func (r *redisLedger) voteableKey(ref thumbsup.Ref) string {
	return r.prefix + ":voteable:" + escape(ref.Type) + ":" + escape(ref.ID)
}

func (r *redisLedger) typeKey(voteableType string) string {
	return r.prefix + ":voteables:" + escape(voteableType)
}

func (r *redisLedger) allKey() string {
	return r.prefix + ":votes"
}

func escape(part string) string {
	return url.QueryEscape(part)
}

func encodeVote(vote thumbsup.Vote) map[string]interface{} {
	return map[string]interface{}{
		"voter_type":    vote.Voter.Type,
		"voter_id":      vote.Voter.ID,
		"voteable_type": vote.Voteable.Type,
		"voteable_id":   vote.Voteable.ID,
		"up":            strconv.FormatBool(vote.Up),
		"dimension":     vote.Dimension.Name,
		"has_dimension": strconv.FormatBool(vote.Dimension.Valid),
		"created_at":    strconv.FormatInt(vote.CreatedAt.UnixNano(), 10),
	}
}

func decodeVotes(ids []string, hashes []map[string]string) ([]thumbsup.Vote, error) {
	result := make([]thumbsup.Vote, 0, len(ids))

	for i, fields := range hashes {
		// index entries may outlive a concurrently deleted hash
		if len(fields) == 0 {
			continue
		}

		vote, err := decodeVote(thumbsup.VoteID(ids[i]), fields)
		if err != nil {
			return nil, err
		}
		result = append(result, vote)
	}

	return result, nil
}

func decodeVote(id thumbsup.VoteID, fields map[string]string) (thumbsup.Vote, error) {
	up, err := strconv.ParseBool(fields["up"])
	if err != nil {
		return thumbsup.Vote{}, errors.Wrapf(err, "decode vote %s direction", id)
	}

	hasDimension, err := strconv.ParseBool(fields["has_dimension"])
	if err != nil {
		return thumbsup.Vote{}, errors.Wrapf(err, "decode vote %s dimension", id)
	}

	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return thumbsup.Vote{}, errors.Wrapf(err, "decode vote %s created_at", id)
	}

	return thumbsup.Vote{
		ID:        id,
		Voter:     thumbsup.Ref{Type: fields["voter_type"], ID: fields["voter_id"]},
		Voteable:  thumbsup.Ref{Type: fields["voteable_type"], ID: fields["voteable_id"]},
		Up:        up,
		Dimension: thumbsup.Dimension{Name: fields["dimension"], Valid: hasDimension},
		CreatedAt: time.Unix(0, createdAt).UTC(),
	}, nil
}
