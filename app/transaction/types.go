package transaction

import (
	"encoding/json"
	"time"

	"github.com/lysyi3m/tradewire/app/teams"
)

type Kind string

const (
	KindTrade     Kind = "trade"
	KindSigning   Kind = "signing"
	KindDraft     Kind = "draft"
	KindRelease   Kind = "release"
	KindExtension Kind = "extension"
	KindHire      Kind = "hire"
	KindFire      Kind = "fire"
	KindPromotion Kind = "promotion"
)

// Candidate is an extracted, not yet persisted transaction. The set of
// implementations is closed: only the types in this package satisfy it.
type Candidate interface {
	Kind() Kind
	TeamIDs() []teams.ID
	When() time.Time
	base() *Base
}

// Base holds the fields shared by every kind. ID is required by the schema
// but is never produced by the model and never carried by a candidate.
type Base struct {
	ID        string    `json:"id,omitempty" validate:"required" schema:"-"`
	Type      Kind      `json:"type" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required" desc:"the article publish date, copied exactly"`
	Summary   string    `json:"summary" validate:"required,max=500" desc:"one factual sentence describing the transaction"`
}

func (b *Base) base() *Base { return b }

func (b *Base) When() time.Time { return b.Timestamp }

type Player struct {
	Name     string `json:"name" validate:"required,max=120"`
	Position string `json:"position" validate:"omitempty,max=8" desc:"abbreviation such as QB, WR, EDGE"`
}

type Staff struct {
	Name string `json:"name" validate:"required,max=120"`
	Role string `json:"role" validate:"required,max=80" desc:"e.g. head coach, offensive coordinator, general manager"`
}

type Contract struct {
	Years         int   `json:"years" validate:"omitempty,gte=1,lte=10"`
	TotalValueUSD int64 `json:"total_value_usd" validate:"omitempty,gte=0"`
	GuaranteedUSD int64 `json:"guaranteed_usd" validate:"omitempty,gte=0"`
}

type Pick struct {
	Year         int      `json:"year" validate:"required,gte=1936,lte=2100"`
	Round        int      `json:"round" validate:"required,gte=1,lte=7"`
	Overall      int      `json:"overall" validate:"omitempty,gte=1,lte=300" desc:"overall selection number when known"`
	OriginalTeam teams.ID `json:"original_team" validate:"required,team" desc:"team that originally owned the pick"`
}

type Asset struct {
	Kind     string   `json:"kind" validate:"required,oneof=player draft_pick cash"`
	FromTeam teams.ID `json:"from_team" validate:"required,team"`
	ToTeam   teams.ID `json:"to_team" validate:"required,team,nefield=FromTeam"`
	Player   *Player  `json:"player,omitempty" validate:"required_if=Kind player"`
	Pick     *Pick    `json:"pick,omitempty" validate:"required_if=Kind draft_pick"`
}

type Trade struct {
	Base
	Teams  []teams.ID `json:"teams" validate:"min=2,unique,dive,team" desc:"exactly the teams appearing in assets"`
	Assets []Asset    `json:"assets" validate:"min=2,dive"`
}

func (*Trade) Kind() Kind { return KindTrade }

func (t *Trade) TeamIDs() []teams.ID { return teams.Set(t.Teams...) }

type Signing struct {
	Base
	Team        teams.ID  `json:"team" validate:"required,team"`
	Player      Player    `json:"player"`
	SigningType string    `json:"signing_type" validate:"required,oneof=free_agent re_signing practice_squad futures undrafted"`
	Contract    *Contract `json:"contract,omitempty" validate:"omitempty"`
}

func (*Signing) Kind() Kind { return KindSigning }

func (s *Signing) TeamIDs() []teams.ID { return []teams.ID{s.Team} }

type Draft struct {
	Base
	Team   teams.ID `json:"team" validate:"required,team" desc:"team making the selection"`
	Player Player   `json:"player"`
	Pick   Pick     `json:"pick"`
}

func (*Draft) Kind() Kind { return KindDraft }

func (d *Draft) TeamIDs() []teams.ID { return teams.Set(d.Team, d.Pick.OriginalTeam) }

type Release struct {
	Base
	Team        teams.ID `json:"team" validate:"required,team"`
	Player      Player   `json:"player"`
	ReleaseType string   `json:"release_type" validate:"required,oneof=released waived cut"`
}

func (*Release) Kind() Kind { return KindRelease }

func (r *Release) TeamIDs() []teams.ID { return []teams.ID{r.Team} }

type Extension struct {
	Base
	Team     teams.ID `json:"team" validate:"required,team"`
	Player   Player   `json:"player"`
	Contract Contract `json:"contract"`
}

func (*Extension) Kind() Kind { return KindExtension }

func (e *Extension) TeamIDs() []teams.ID { return []teams.ID{e.Team} }

type Hire struct {
	Base
	Team  teams.ID `json:"team" validate:"required,team"`
	Staff Staff    `json:"staff"`
}

func (*Hire) Kind() Kind { return KindHire }

func (h *Hire) TeamIDs() []teams.ID { return []teams.ID{h.Team} }

type Fire struct {
	Base
	Team  teams.ID `json:"team" validate:"required,team"`
	Staff Staff    `json:"staff"`
}

func (*Fire) Kind() Kind { return KindFire }

func (f *Fire) TeamIDs() []teams.ID { return []teams.ID{f.Team} }

type Promotion struct {
	Base
	Team         teams.ID `json:"team" validate:"required,team"`
	Staff        Staff    `json:"staff" desc:"role is the new role"`
	PreviousRole string   `json:"previous_role" validate:"required,max=80"`
}

func (*Promotion) Kind() Kind { return KindPromotion }

func (p *Promotion) TeamIDs() []teams.ID { return []teams.ID{p.Team} }

// Transaction is a committed candidate.
type Transaction struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
	TeamIDs    []teams.ID      `json:"teams"`
	Data       json.RawMessage `json:"data"`
	SourceGUID string          `json:"source_guid,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
