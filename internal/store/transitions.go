package store

import "waitlist/queue-service/internal/models"

var transitionMap = map[string][]string{
	"call":     {models.StatusWaiting},
	"cancel":   {models.StatusWaiting},
	"complete": {models.StatusCalled},
	"link":     {models.StatusWaiting},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
