package secrets

import "os"

// EnvLoader returns a Loader that reads each key from the environment,
// falling back to the given value when the variable is unset. Keys that
// resolve to "" are omitted.
func EnvLoader(fallbacks map[string]string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(fallbacks))
		for k, def := range fallbacks {
			v := os.Getenv(k)
			if v == "" {
				v = def
			}
			if v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}
