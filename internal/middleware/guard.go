package middleware

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gofiber/fiber/v3"

	"permission-service/internal/models"
	"permission-service/internal/service"
	"permission-service/pkg/metrics"
)

// Stable client-facing denial codes. They distinguish "not
// authenticated" from "authenticated but insufficient" and nothing
// more: which grant failed never leaks.
const (
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInternal         = "INTERNAL"
)

// Policy is the declared requirement of one guarded operation.
// IDParam names the route parameter carrying the resource id; empty
// means a type-level check.
type Policy struct {
	Action       string
	ResourceType string
	IDParam      string
}

// ResourceFetcher loads a subject instance for rule conditions.
type ResourceFetcher interface {
	FindResource(ctx context.Context, resourceType, id string) (any, error)
}

// Guard is the request-time decision point. Every guarded route must
// Declare its policy; a route that reaches Enforce without one is
// denied no matter who is asking.
type Guard struct {
	resolver  *service.PermissionResolver
	cache     service.PermissionCache
	ability   *service.AbilityService
	resources ResourceFetcher

	mu       sync.RWMutex
	policies map[string]Policy
}

func NewGuard(resolver *service.PermissionResolver, cache service.PermissionCache, ability *service.AbilityService, resources ResourceFetcher) *Guard {
	return &Guard{
		resolver:  resolver,
		cache:     cache,
		ability:   ability,
		resources: resources,
		policies:  make(map[string]Policy),
	}
}

func routeKey(method, path string) string {
	return method + " " + path
}

// Declare attaches policy metadata to a route. Call once per guarded
// route during route registration.
func (g *Guard) Declare(method, path string, policy Policy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.policies[routeKey(method, path)] = policy
}

// CheckPolicies is the startup completeness check: every declared
// policy must either be handled hierarchically (documents) or have an
// ability builder registered for its resource type. Run it after all
// routes are registered and abort on error.
func (g *Guard) CheckPolicies() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for key, policy := range g.policies {
		if policy.Action == "" || policy.ResourceType == "" {
			return fmt.Errorf("route %s declares an incomplete policy", key)
		}
		if policy.ResourceType == models.ResourceDocument {
			if policy.IDParam == "" {
				continue // type-level document checks go through the evaluator
			}
			if _, ok := models.DocumentActionLevel(policy.Action); !ok {
				return fmt.Errorf("route %s uses document action %q with no level threshold", key, policy.Action)
			}
			continue
		}
		if !g.ability.Registry().Has(policy.ResourceType) {
			return fmt.Errorf("route %s declares resource type %q with no registered ability builder", key, policy.ResourceType)
		}
	}
	return nil
}

// Enforce resolves the declared policy for the matched route and
// allows or denies the request. Infrastructure failures surface as
// 500s, never as a permission decision.
func (g *Guard) Enforce() fiber.Handler {
	return func(c fiber.Ctx) error {
		principalID := PrincipalID(c)
		if principalID == "" {
			metrics.PermissionChecks.WithLabelValues("unauthenticated").Inc()
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"code":  CodeUnauthenticated,
				"error": "Authentication required",
			})
		}

		g.mu.RLock()
		policy, declared := g.policies[routeKey(c.Method(), c.Route().Path)]
		g.mu.RUnlock()
		if !declared || policy.Action == "" || policy.ResourceType == "" {
			// Configuration defect: treated as denial for the caller,
			// loud in the logs for us.
			log.Printf("No policy declared for %s %s, denying", c.Method(), c.Route().Path)
			metrics.PermissionChecks.WithLabelValues("undeclared").Inc()
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"code":  CodePermissionDenied,
				"error": "You don't have enough permission",
			})
		}

		resourceID := ""
		if policy.IDParam != "" {
			resourceID = c.Params(policy.IDParam)
		}

		allowed, err := g.check(c.Context(), principalID, policy, resourceID)
		if err != nil {
			log.Printf("Permission check failed for %s on %s %s: %v", principalID, c.Method(), c.Route().Path, err)
			metrics.PermissionChecks.WithLabelValues("error").Inc()
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"code":  CodeInternal,
				"error": "Permission check unavailable",
			})
		}
		if !allowed {
			metrics.PermissionChecks.WithLabelValues("denied").Inc()
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"code":  CodePermissionDenied,
				"error": "You don't have enough permission",
			})
		}

		metrics.PermissionChecks.WithLabelValues("allowed").Inc()
		return c.Next()
	}
}

func (g *Guard) check(ctx context.Context, principalID string, policy Policy, resourceID string) (bool, error) {
	if policy.ResourceType == models.ResourceDocument && resourceID != "" {
		return g.checkDocument(ctx, principalID, policy.Action, resourceID)
	}

	if resourceID != "" {
		instance, err := g.resources.FindResource(ctx, policy.ResourceType, resourceID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				// Fail closed. Distinguishable here in the logs, not
				// in the client-facing outcome.
				log.Printf("Resource %s/%s not found during permission check", policy.ResourceType, resourceID)
				return false, nil
			}
			return false, err
		}
		return g.ability.Can(ctx, principalID, policy.Action, policy.ResourceType, instance)
	}

	return g.ability.Can(ctx, principalID, policy.Action, policy.ResourceType, nil)
}

// checkDocument is the hierarchical fast path: cached effective level
// against the fixed action threshold table.
func (g *Guard) checkDocument(ctx context.Context, principalID, action, documentID string) (bool, error) {
	required, ok := models.DocumentActionLevel(action)
	if !ok {
		return false, nil
	}

	level, err := g.effectiveLevel(ctx, principalID, documentID)
	if err != nil {
		return false, err
	}
	return level >= required, nil
}

// EffectiveLevel resolves through the cache, populating it on a miss.
// Exposed for handlers that need the level itself (bulk operations,
// permission introspection).
func (g *Guard) EffectiveLevel(ctx context.Context, principalID, documentID string) (models.PermissionLevel, error) {
	return g.effectiveLevel(ctx, principalID, documentID)
}

func (g *Guard) effectiveLevel(ctx context.Context, principalID, documentID string) (models.PermissionLevel, error) {
	level, hit, err := g.cache.Get(ctx, principalID, documentID)
	if err != nil {
		return models.LevelNone, err
	}
	if hit {
		return level, nil
	}

	level, err = g.resolver.Resolve(ctx, principalID, documentID, models.ResourceDocument)
	if err != nil {
		return models.LevelNone, err
	}
	if err := g.cache.Put(ctx, principalID, documentID, level); err != nil {
		// A cache write failure costs a re-resolve, nothing else.
		log.Printf("Failed to cache permission for %s on %s: %v", principalID, documentID, err)
	}
	return level, nil
}
