// README: Monthly AI generation allowance per actor, counted as usage per calendar month.
package aiusage

import (
	"errors"
	"time"
)

// ErrInsufficientTokens is returned when an actor has used the whole allowance of the current month.
var ErrInsufficientTokens = errors.New("insufficient tokens")

// DefaultTokens is the number of generations granted per actor and month.
const DefaultTokens = 100

const monthLayout = "2006-01"

func monthOf(t time.Time) string {
	return t.UTC().Format(monthLayout)
}
