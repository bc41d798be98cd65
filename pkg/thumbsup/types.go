package thumbsup

import (
	"time"
)

// Entity is the capability an entity type grants by exposing a stable type tag
// and identifier. The engine never looks past these two accessors.
type Entity interface {
	TypeTag() string
	Identifier() string
}

// Voter is an entity that casts votes.
type Voter interface {
	Entity
}

// Voteable is an entity that receives votes.
type Voteable interface {
	Entity
}

// Ref is a polymorphic (type tag, identifier) reference. It implements Entity,
// so hosts may pass plain references wherever an entity is expected.
type Ref struct {
	Type string
	ID   string
}

func RefOf(entity Entity) Ref {
	if ref, ok := entity.(Ref); ok {
		return ref
	}

	return Ref{Type: entity.TypeTag(), ID: entity.Identifier()}
}

func (r Ref) TypeTag() string {
	return r.Type
}

func (r Ref) Identifier() string {
	return r.ID
}

func (r Ref) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

// Complete reports whether both parts of the reference are set.
func (r Ref) Complete() bool {
	return r.Type != "" && r.ID != ""
}

func (r Ref) String() string {
	return r.Type + "#" + r.ID
}

// Dimension partitions the votes on one voteable. The zero value is the
// unnamed default dimension, which is a partition of its own.
type Dimension struct {
	Name  string
	Valid bool
}

var NoDimension = Dimension{}

func Dim(name string) Dimension {
	return Dimension{Name: name, Valid: true}
}

// Ptr returns a filter scope matching exactly this dimension.
func (d Dimension) Ptr() *Dimension {
	return &d
}

func (d Dimension) String() string {
	if !d.Valid {
		return "<default>"
	}

	return d.Name
}

type Direction string

const (
	AnyDirection Direction = ""
	Up           Direction = "up"
	Down         Direction = "down"
)

func (d Direction) Valid() bool {
	return d == Up || d == Down
}

type VoteID string

// Vote is an immutable ledger record. Votes are never updated in place, only
// deleted and recreated.
type Vote struct {
	ID        VoteID
	Voter     Ref
	Voteable  Ref
	Up        bool
	Dimension Dimension
	CreatedAt time.Time
}

func (v Vote) Direction() Direction {
	if v.Up {
		return Up
	}

	return Down
}

// Filter selects ledger rows. Unset fields do not constrain; a Ref with only
// its Type set constrains the type alone. A nil Dimension matches every
// dimension, a non-nil one matches exactly that dimension (including the
// default one). Time bounds are inclusive.
type Filter struct {
	Voter         Ref
	Voteable      Ref
	Dimension     *Dimension
	Direction     Direction
	CreatedAfter  time.Time
	CreatedBefore time.Time
}

func (f Filter) Match(vote Vote) bool {
	if !matchRef(f.Voter, vote.Voter) || !matchRef(f.Voteable, vote.Voteable) {
		return false
	}

	if f.Dimension != nil && *f.Dimension != vote.Dimension {
		return false
	}

	switch f.Direction {
	case Up:
		if !vote.Up {
			return false
		}
	case Down:
		if vote.Up {
			return false
		}
	}

	if !f.CreatedAfter.IsZero() && vote.CreatedAt.Before(f.CreatedAfter) {
		return false
	}

	if !f.CreatedBefore.IsZero() && vote.CreatedAt.After(f.CreatedBefore) {
		return false
	}

	return true
}

// Intersect combines two filters with AND semantics. It reports false when
// the filters pin the same field to different values, in which case no vote
// can match both. Time bounds keep the tighter of both.
func (f Filter) Intersect(other Filter) (Filter, bool) {
	result := f
	ok := true

	pick := func(own *string, theirs string) {
		switch {
		case theirs == "":
		case *own == "":
			*own = theirs
		case *own != theirs:
			ok = false
		}
	}

	pick(&result.Voter.Type, other.Voter.Type)
	pick(&result.Voter.ID, other.Voter.ID)
	pick(&result.Voteable.Type, other.Voteable.Type)
	pick(&result.Voteable.ID, other.Voteable.ID)

	direction := string(result.Direction)
	pick(&direction, string(other.Direction))
	result.Direction = Direction(direction)

	if other.Dimension != nil {
		if result.Dimension == nil {
			result.Dimension = other.Dimension
		} else if *result.Dimension != *other.Dimension {
			ok = false
		}
	}

	if other.CreatedAfter.After(result.CreatedAfter) {
		result.CreatedAfter = other.CreatedAfter
	}
	if !other.CreatedBefore.IsZero() &&
		(result.CreatedBefore.IsZero() || other.CreatedBefore.Before(result.CreatedBefore)) {
		result.CreatedBefore = other.CreatedBefore
	}
	if !result.CreatedAfter.IsZero() && !result.CreatedBefore.IsZero() &&
		result.CreatedAfter.After(result.CreatedBefore) {
		ok = false
	}

	return result, ok
}

func (f Filter) Validate() error {
	if f.Direction != AnyDirection && !f.Direction.Valid() {
		return ErrInvalidDirection
	}

	return nil
}

func matchRef(pattern, value Ref) bool {
	if pattern.Type != "" && pattern.Type != value.Type {
		return false
	}

	if pattern.ID != "" && pattern.ID != value.ID {
		return false
	}

	return true
}
