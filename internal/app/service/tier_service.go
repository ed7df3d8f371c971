package service

import (
	"time"

	"github.com/jose-valero/guardbot-fleet/internal/domain"
)

// TierRoles mapea roles del servidor a tiers; viene del archivo de flota.
type TierRoles struct {
	DonaturIDs    []string
	DonaturNames  []string
	LoyalistIDs   []string
	LoyalistNames []string
}

// TierService resuelve el tier de un solicitante. Puro, sin efectos:
// atributos faltantes degradan a Free.
type TierService struct {
	roles TierRoles
}

func NewTierService(roles TierRoles) *TierService {
	return &TierService{roles: roles}
}

// Resolve aplica la prioridad fija: boost > donador > loyalist > free.
// Los roles se matchean por ID primero y por nombre después.
func (s *TierService) Resolve(m domain.Member) domain.Tier {
	if m.Boosting {
		return domain.TierBooster
	}
	if matchRole(m, s.roles.DonaturIDs, s.roles.DonaturNames) {
		return domain.TierDonatur
	}
	if matchRole(m, s.roles.LoyalistIDs, s.roles.LoyalistNames) {
		return domain.TierLoyalist
	}
	return domain.TierFree
}

func (s *TierService) StayDuration(t domain.Tier) time.Duration {
	return t.StayDuration()
}

func matchRole(m domain.Member, ids, names []string) bool {
	for _, want := range ids {
		for _, have := range m.RoleIDs {
			if have == want {
				return true
			}
		}
	}
	for _, want := range names {
		for _, have := range m.RoleNames {
			if have == want {
				return true
			}
		}
	}
	return false
}
