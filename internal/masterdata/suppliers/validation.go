package suppliers

import (
	"strings"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/shared"
)

func (s *Service) validate(in Input) (Input, error) {
	in.Code = inventory.NormalizeCode(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := shared.Validate(in); err != nil {
		return Input{}, err
	}
	return in, nil
}
