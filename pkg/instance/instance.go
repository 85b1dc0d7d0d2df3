package instance

import "os"

// GetID identifies the running process in logs. STOREFRONT_INSTANCE_ID wins,
// then the platform's DYNO name, then "local".
func GetID() string {
	for _, key := range []string{"STOREFRONT_INSTANCE_ID", "DYNO"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return "local"
}
