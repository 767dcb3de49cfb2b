package api

import (
	"fmt"

	"github.com/MJE43/hack-terminal/internal/games"
)

const maxDifficulty = 1000

func validationError(field string, err error) EngineError {
	return NewError(ErrTypeValidation, fmt.Sprintf("%s: %v", field, err)).
		WithContext("field", field).
		Build()
}

// ValidateVerifyRequest validates a verify request and resolves its game.
func ValidateVerifyRequest(req *VerifyRequest, reg *games.Registry) (games.Kind, error) {
	if req.Game == "" {
		return "", validationError("game", fmt.Errorf("is required"))
	}
	kind, ok := games.ParseKind(req.Game)
	if !ok {
		return "", NewError(ErrTypeGameNotFound, fmt.Sprintf("game '%s' not found", req.Game)).
			WithContext("available_games", reg.Types()).
			Build()
	}
	if req.Difficulty < 0 || req.Difficulty > maxDifficulty {
		return "", validationError("difficulty", fmt.Errorf("must be between 0 and %d", maxDifficulty))
	}
	if req.Seeds.Server == "" {
		return "", validationError("seeds.server", fmt.Errorf("is required"))
	}
	if req.Seeds.Client == "" {
		return "", validationError("seeds.client", fmt.Errorf("is required"))
	}
	return kind, nil
}
