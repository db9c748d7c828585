package usercontext

import "github.com/gofiber/fiber/v2"

// OperatorContext identifies the operator behind an API key request
type OperatorContext struct {
	OperatorID      uint   `json:"operator_id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	IsAuthenticated bool   `json:"is_authenticated"`
}

// Set stores the operator context on the request.
func Set(c *fiber.Ctx, oc OperatorContext) {
	c.Locals(KeyOperatorContext, oc)
	c.Locals(KeyOperatorID, oc.OperatorID)
	c.Locals(KeyAuthenticated, oc.IsAuthenticated)
}

// GetOperatorContext retrieves the operator context from fiber context
// Returns an unauthenticated context if none is set
func GetOperatorContext(c *fiber.Ctx) OperatorContext {
	if oc, ok := c.Locals(KeyOperatorContext).(OperatorContext); ok {
		return oc
	}
	return OperatorContext{}
}

// GetOperatorID returns the current operator's ID, or 0 if unauthenticated
func GetOperatorID(c *fiber.Ctx) uint {
	return GetOperatorContext(c).OperatorID
}

// IsAuthenticated reports whether an API key was accepted for this request
func IsAuthenticated(c *fiber.Ctx) bool {
	return GetOperatorContext(c).IsAuthenticated
}
