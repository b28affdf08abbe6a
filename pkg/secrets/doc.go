// Package secrets resolves ${secret:name} references in credential fields of
// the configuration.
//
// A configuration file can keep keys out of version control:
//
//	backend:
//	  api_key: ${secret:openai-api-key}
//	auth:
//	  client_api_key: ${secret:proxy-client-key}
//
// Providers are tried in order until one returns a value:
//
//   - EnvProvider reads COURIER_SECRET_OPENAI_API_KEY for "openai-api-key"
//   - FileProvider reads <dir>/openai-api-key, the layout used by Docker
//     and Kubernetes secret mounts
//
// # Usage
//
//	resolver := secrets.FromConfig(&cfg.Secrets)
//	if err := resolver.ResolveConfig(ctx, cfg); err != nil {
//	    return err
//	}
//
// Values that contain no reference are left untouched, so plain keys and
// keys taken from OPENAI_API_KEY keep working.
package secrets
