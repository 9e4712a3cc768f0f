package procedure

import (
	"errors"
	"fmt"

	"github.com/vaultcore/stronghold/pkg/client"
	"github.com/vaultcore/stronghold/pkg/engineerr"
	"github.com/vaultcore/stronghold/pkg/vault"
)

// hintSize matches vault.Writer's RecordHint length (spec §3/§9: every
// record hint is exactly 24 bytes).
const hintSize = 24

// Runner executes Procedures against one Client.
type Runner struct {
	c *client.Client
}

// New returns a Runner bound to c.
func New(c *client.Client) *Runner {
	return &Runner{c: c}
}

// Execute runs a single procedure under one exclusive lock on the
// runner's client: it resolves and decrypts every source, calls
// proc.Run, and — if proc.Target is set and Run succeeds — writes the
// secret output as a new transaction under a freshly generated hint.
func (r *Runner) Execute(proc Procedure) (PublicOutput, error) {
	var out PublicOutput
	err := r.c.WithLock(func(tx *client.Tx) error {
		pub, err := r.runLocked(tx, proc)
		out = pub
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExecuteChained runs procs in order under one exclusive lock spanning
// the whole chain. If any procedure fails after earlier ones have
// written a target, every target written so far in this call is
// revoked, in reverse order, before the first failure is returned
// (I6/P5): a chain is all-or-nothing at the level of persisted
// secrets.
func (r *Runner) ExecuteChained(procs []Procedure) ([]PublicOutput, error) {
	var outputs []PublicOutput
	err := r.c.WithLock(func(tx *client.Tx) error {
		var written []vault.Location
		for _, proc := range procs {
			pub, err := r.runLocked(tx, proc)
			if err != nil {
				for i := len(written) - 1; i >= 0; i-- {
					if revokeErr := tx.Revoke(written[i]); revokeErr != nil {
						return engineerr.NewProcedureError(engineerr.ProcedureErrFatal, revokeErr)
					}
				}
				return err
			}
			outputs = append(outputs, pub)
			if proc.Target != nil {
				written = append(written, *proc.Target)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outputs, nil
}

func (r *Runner) runLocked(tx *client.Tx, proc Procedure) (PublicOutput, error) {
	if proc.Target != nil {
		if err := checkNoTargetSourceCollision(tx, proc); err != nil {
			return nil, err
		}
	}

	inputs := make([][]byte, len(proc.Sources))
	for i, loc := range proc.Sources {
		in, err := tx.Read(loc)
		if err != nil {
			return nil, classifyReadErr(err)
		}
		inputs[i] = in
	}

	secretOut, publicOut, err := proc.Run(tx.Provider(), inputs)
	if err != nil {
		return nil, engineerr.NewProcedureError(engineerr.ProcedureErrFatal, err)
	}

	if proc.Target != nil {
		hint := make([]byte, hintSize)
		if err := tx.Provider().Random(hint); err != nil {
			return nil, engineerr.NewProcedureError(engineerr.ProcedureErrAllocation, err)
		}
		if err := tx.Write(*proc.Target, secretOut, hint); err != nil {
			return nil, classifyReadErr(err)
		}
	}
	return publicOut, nil
}

// checkNoTargetSourceCollision guards against a procedure silently
// overwriting one of its own sources with a stale counter assumption:
// if target and a source resolve to the same record, the procedure
// must have been built to read-then-overwrite explicitly (none of the
// constructors in this package do), so any collision here is treated
// as a caller error rather than executed.
func checkNoTargetSourceCollision(tx *client.Tx, proc Procedure) error {
	tgtVid, tgtRid, err := tx.Resolve(*proc.Target)
	if err != nil {
		return err
	}
	for _, src := range proc.Sources {
		srcVid, srcRid, err := tx.Resolve(src)
		if err != nil {
			return err
		}
		if srcVid == tgtVid && srcRid == tgtRid {
			return fmt.Errorf("%w: procedure target collides with a source record", engineerr.ErrInvalidLocation)
		}
	}
	return nil
}

func classifyReadErr(err error) error {
	var procErr *engineerr.ProcedureError
	if errors.As(err, &procErr) {
		return err
	}
	switch {
	case errors.Is(err, engineerr.ErrVaultNotFound):
		return engineerr.NewProcedureError(engineerr.ProcedureErrVaultNotFound, err)
	case errors.Is(err, engineerr.ErrRecordNotFound), errors.Is(err, engineerr.ErrRecordIsEmpty):
		return engineerr.NewProcedureError(engineerr.ProcedureErrRecordNotFound, err)
	case errors.Is(err, engineerr.ErrInvalidLocation):
		return engineerr.NewProcedureError(engineerr.ProcedureErrInvalidLocation, err)
	case errors.Is(err, engineerr.ErrAllocationFailed):
		return engineerr.NewProcedureError(engineerr.ProcedureErrAllocation, err)
	default:
		return engineerr.NewProcedureError(engineerr.ProcedureErrFatal, err)
	}
}
