package auction

import (
	"github.com/obsidian-mpc/obsidian/internal/party"
	"github.com/obsidian-mpc/obsidian/internal/preprocess"
	"github.com/obsidian-mpc/obsidian/internal/transcript"
	"github.com/obsidian-mpc/obsidian/pkg/field"
	"github.com/obsidian-mpc/obsidian/pkg/mac"
)

// Conn is the transport primitive a session needs: the MAC/sketch opening
// round, satisfied structurally by internal/transport.Conn.
type Conn interface {
	OpenScalar(local field.Elem) (field.Elem, error)
	OpenVector(local []field.Elem) ([]field.Elem, error)
}

// Run drives one full auction session end to end: PRE (bundle and v1/v2/v3
// already verified by the caller via internal/preprocess.VerifyBundle) →
// SUM → SCAN/LOCATE → IDENTIFY → VERIFY (spec §4.F's phase list). xs are
// the bidders' opened client-encoding values (see
// preprocess.Dealer.DealWithBids). Any MAC, sketch, cross-layer, or
// transport failure along the way aborts the whole session with no
// partial output — Run itself never returns a partial Result alongside a
// non-nil error.
func Run(self party.ID, conn Conn, tx *transcript.Hasher, bundle preprocess.Bundle, v1, v2, v3 *preprocess.Verified, xs []field.Elem) (Result, error) {
	engine := mac.New(tx)

	s := Sum(v1.Vector, v1.VMac, xs)

	result, err := Locate(engine, conn, s, v2.Offset, v2.Vector, v2.VMac, v3.Offset, v3.Vector, v3.VMac, len(xs))
	if err != nil {
		return Result{}, err
	}

	winner, err := Identify(engine, conn, v1.Vector, v1.VMac, xs, result.SecondPriceLevel)
	if err != nil {
		return Result{}, err
	}
	result.Winner = winner

	if err := engine.Finalize(conn, bundle.AlphaShare); err != nil {
		return Result{}, err
	}
	return result, nil
}
