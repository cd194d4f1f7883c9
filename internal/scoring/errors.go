package scoring

import "errors"

// Faults, as opposed to outcomes. A lost uniqueness race is never an
// error here: it comes back as AlreadySolved / AlreadyUnlocked on the
// result type instead.
var (
	ErrEmptyFlag              = errors.New("empty flag")
	ErrUnknownTeam            = errors.New("unknown team")
	ErrUnknownChallenge       = errors.New("unknown challenge")
	ErrChallengeUnavailable   = errors.New("challenge is not open for submissions")
	ErrUnknownHint            = errors.New("unknown hint")
	ErrStoreUnavailable       = errors.New("ledger store unavailable")
	ErrReconciliationMismatch = errors.New("incremental score disagrees with ledger fold")
)
