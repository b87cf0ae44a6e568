package transaction

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/lysyi3m/tradewire/app/teams"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		if err := v.RegisterValidation("team", func(fl validator.FieldLevel) bool {
			return teams.Valid(teams.ID(fl.Field().String()))
		}); err != nil {
			panic(err)
		}

		v.RegisterStructValidation(validateTradeTeams, Trade{})

		validate = v
	})
	return validate
}

// validateTradeTeams enforces that a trade lists exactly the teams its assets
// move between.
func validateTradeTeams(sl validator.StructLevel) {
	t, ok := sl.Current().Interface().(Trade)
	if !ok {
		return
	}

	listed := make(map[teams.ID]bool, len(t.Teams))
	for _, id := range t.Teams {
		listed[id] = true
	}

	referenced := make(map[teams.ID]bool, len(t.Teams))
	for _, a := range t.Assets {
		referenced[a.FromTeam] = true
		referenced[a.ToTeam] = true
	}

	for id := range referenced {
		if !listed[id] {
			sl.ReportError(t.Teams, "teams", "Teams", "trade_teams", string(id))
			return
		}
	}
	for id := range listed {
		if !referenced[id] {
			sl.ReportError(t.Teams, "teams", "Teams", "trade_teams", string(id))
			return
		}
	}
}

// Validate checks a candidate against its schema, including the id field.
func Validate(c Candidate) error {
	if c == nil {
		return eris.New("transaction: nil candidate")
	}
	if got := c.base().Type; got != c.Kind() {
		return eris.Errorf("transaction: type %q does not match %s shape", got, c.Kind())
	}
	if err := validatorInstance().Struct(c); err != nil {
		return eris.Wrapf(err, "transaction: invalid %s", c.Kind())
	}
	return nil
}
