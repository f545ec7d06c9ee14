package directory

import "errors"

// firstSuccess hands candidates to try in order and returns the first result
// obtained without error. When stop reports true for an error the iteration
// ends early. The returned error joins every error seen.
func firstSuccess[C, R any](candidates []C, try func(C) (R, error), stop func(error) bool) (R, error) {
	var zero R

	if len(candidates) == 0 {
		return zero, errNoCandidates
	}

	errs := make([]error, 0, len(candidates))

	for _, candidate := range candidates {
		result, err := try(candidate)
		if err == nil {
			return result, nil
		}

		errs = append(errs, err)

		if stop != nil && stop(err) {
			break
		}
	}

	return zero, errors.Join(errs...)
}
