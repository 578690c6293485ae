package usecases

import (
	"context"
	"strings"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

const maxTrialExtensionDays = 365

// AdminUsecase holds the operations behind /api/admin. Callers are already known to be admins;
// master-only operations check actor themselves.
type AdminUsecase struct {
	users   interfaces.UserStore
	journey *JourneyService
	monitor *TrialMonitor
	cache   interfaces.Cache
	clock   clock.Clock
	log     *zap.Logger
}

func NewAdminUsecase(
	users interfaces.UserStore,
	journey *JourneyService,
	monitor *TrialMonitor,
	cache interfaces.Cache,
	clk clock.Clock,
	log *zap.Logger,
) *AdminUsecase {
	return &AdminUsecase{
		users:   users,
		journey: journey,
		monitor: monitor,
		cache:   cache,
		clock:   clk,
		log:     log.With(zap.String("component", "admin")),
	}
}

func (u *AdminUsecase) Stats(ctx context.Context) (*entities.UserStats, error) {
	return u.users.Stats(ctx, u.clock.Now())
}

func (u *AdminUsecase) ListUsers(ctx context.Context, f entities.UserFilter) ([]entities.User, int, error) {
	if f.Status != "" && !entities.ValidAccountStatus(f.Status) {
		return nil, 0, entities.Invalid("invalid status filter")
	}
	return u.users.List(ctx, f)
}

func (u *AdminUsecase) GetUser(ctx context.Context, id int64) (*entities.User, error) {
	return u.users.GetByID(ctx, id)
}

func (u *AdminUsecase) SetStatus(ctx context.Context, actor *entities.User, id int64, status string) (*entities.User, error) {
	if !entities.ValidAccountStatus(status) {
		return nil, entities.Invalid("invalid account status")
	}
	if actor.ID == id && status != entities.StatusActive {
		return nil, entities.Invalid("cannot deactivate your own account")
	}
	if err := u.users.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	u.cache.Invalidate(id)
	if status == entities.StatusActive {
		u.journey.CheckMilestones(ctx, id, entities.MilestoneSubscriptionActivated)
	}
	u.log.Info("Account status changed", zap.Int64("actor_id", actor.ID), zap.Int64("user_id", id), zap.String("status", status))
	return u.users.GetByID(ctx, id)
}

// ExtendTrial pushes the trial end days forward from the later of now and the current end.
func (u *AdminUsecase) ExtendTrial(ctx context.Context, actor *entities.User, id int64, days int) (*entities.User, error) {
	if days < 1 || days > maxTrialExtensionDays {
		return nil, entities.Invalid("days must be between 1 and 365")
	}
	user, err := u.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	base := u.clock.Now()
	if user.TrialEndsAt.After(base) {
		base = user.TrialEndsAt
	}
	if err := u.users.ExtendTrial(ctx, id, base.AddDate(0, 0, days)); err != nil {
		return nil, err
	}
	u.cache.Invalidate(id)
	u.log.Info("Trial extended", zap.Int64("actor_id", actor.ID), zap.Int64("user_id", id), zap.Int("days", days))
	return u.users.GetByID(ctx, id)
}

func (u *AdminUsecase) SetPermissions(ctx context.Context, actor *entities.User, id int64, perms []string) (*entities.User, error) {
	clean := make([]string, 0, len(perms))
	seen := map[string]bool{}
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		clean = append(clean, p)
	}
	if err := u.users.UpdatePermissions(ctx, id, clean); err != nil {
		return nil, err
	}
	u.log.Info("Permissions changed", zap.Int64("actor_id", actor.ID), zap.Int64("user_id", id), zap.Strings("permissions", clean))
	return u.users.GetByID(ctx, id)
}

func (u *AdminUsecase) SetAdminRole(ctx context.Context, actor *entities.User, id int64, role string) (*entities.User, error) {
	if actor.AdminRole != entities.AdminRoleMaster {
		return nil, entities.Forbidden("only the master admin can change roles")
	}
	if !entities.ValidAdminRole(role) {
		return nil, entities.Invalid("invalid admin role")
	}
	if actor.ID == id {
		return nil, entities.Invalid("cannot change your own role")
	}
	if err := u.users.UpdateAdminRole(ctx, id, role); err != nil {
		return nil, err
	}
	u.log.Info("Admin role changed", zap.Int64("actor_id", actor.ID), zap.Int64("user_id", id), zap.String("role", role))
	return u.users.GetByID(ctx, id)
}

// DeleteUser removes the user and all of their data.
func (u *AdminUsecase) DeleteUser(ctx context.Context, actor *entities.User, id int64) error {
	if actor.AdminRole != entities.AdminRoleMaster {
		return entities.Forbidden("only the master admin can delete users")
	}
	if actor.ID == id {
		return entities.Invalid("cannot delete your own account")
	}
	if err := u.users.Delete(ctx, id); err != nil {
		return err
	}
	u.cache.Invalidate(id)
	u.log.Warn("User deleted", zap.Int64("actor_id", actor.ID), zap.Int64("user_id", id))
	return nil
}

func (u *AdminUsecase) RunTrialCheck(ctx context.Context) (CycleResult, error) {
	return u.monitor.RunCycle(ctx)
}
