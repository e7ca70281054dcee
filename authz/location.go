package authz

import (
	"context"
	"errors"
	"log"

	"github.com/sidesa-id/sidesa/db"
	"github.com/sidesa-id/sidesa/geo"
	"github.com/sidesa-id/sidesa/internal/obs"
)

// CanAccessLocation decides whether the actor may operate on data anchored at
// the requested tuple. Absent tuple fields are wildcards. The descendant test
// runs on an optimized joined query first and falls back to a per-level walk
// of the tree when that path fails; both reach the same verdict. An error
// return means the check itself failed (infrastructure), never allow or deny.
func (e *Engine) CanAccessLocation(ctx context.Context, actor *ActorContext, loc LocationRef) (Decision, error) {
	if actor.HasRoleName(RoleSuperAdmin) {
		return record("location", Allow), nil
	}

	anchorLevel, anchorID := actor.Anchor()
	if anchorLevel == "" || anchorID == "" {
		// Citizens and unanchored officials: resource-ownership checks apply
		// instead, a bare location check has nothing to compare against.
		return record("location", Deny(CodeNoLocationAssigned)), nil
	}

	if loc.At(anchorLevel) == anchorID {
		return record("location", Allow), nil
	}

	if actor.InheritanceDepth != db.InheritanceAllChildren {
		return record("location", Deny(CodeLocationAccessDenied)), nil
	}

	targetLevel, targetID := loc.MostSpecific()
	if targetID == "" || geo.Rank(targetLevel) <= geo.Rank(anchorLevel) {
		return record("location", Deny(CodeLocationAccessDenied)), nil
	}

	ok, err := e.geo.IsDescendant(ctx, anchorLevel, anchorID, targetLevel, targetID)
	if err != nil {
		log.Printf("authz: optimized location check failed for user %s, using fallback: %v", actor.UserID, err)
		obs.FallbackActivations.WithLabelValues("location").Inc()
		return e.locationFallback(ctx, actor, anchorLevel, anchorID, targetLevel, targetID)
	}
	if ok {
		return record("location", Allow), nil
	}
	return record("location", Deny(CodeLocationAccessDenied)), nil
}

// locationFallback re-derives the verdict with direct lookups: confirm the
// actor's anchor node exists, then walk the target's parent chain level by
// level and compare. A missing anchor node is a deny, not a silent allow.
func (e *Engine) locationFallback(ctx context.Context, actor *ActorContext, anchorLevel geo.Level, anchorID string, targetLevel geo.Level, targetID string) (Decision, error) {
	if _, err := e.geo.Node(ctx, anchorLevel, anchorID); err != nil {
		if errors.Is(err, geo.ErrNotFound) {
			return record("location", Deny(CodeNoLocationAssigned)), nil
		}
		return Decision{}, err
	}

	ok, err := e.walkIsDescendant(ctx, anchorLevel, anchorID, targetLevel, targetID)
	if err != nil {
		return Decision{}, err
	}
	if ok {
		return record("location", Allow), nil
	}
	return record("location", Deny(CodeLocationAccessDenied)), nil
}

// walkIsDescendant climbs from (level, id) to anchorLevel one parent at a
// time. A broken chain or missing node is false, not an error.
func (e *Engine) walkIsDescendant(ctx context.Context, anchorLevel geo.Level, anchorID string, level geo.Level, id string) (bool, error) {
	curLevel, curID := level, id
	for geo.Rank(curLevel) > geo.Rank(anchorLevel) {
		node, err := e.geo.Node(ctx, curLevel, curID)
		if err != nil {
			if errors.Is(err, geo.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		if node.ParentID == "" {
			return false, nil
		}
		curLevel = geo.ParentLevel(curLevel)
		curID = node.ParentID
	}
	return curLevel == anchorLevel && curID == anchorID, nil
}
