// Package config loads and validates Courier configuration.
//
// Configuration comes from three layers, later layers winning:
//
//  1. Built-in defaults (see DefaultConfig)
//  2. An optional YAML file
//  3. Environment variables, including a .env file in the working directory
//
// # Environment Variables
//
// Every field can be set with COURIER_SECTION_FIELD, for example
// COURIER_BACKEND_BASE_URL or COURIER_TELEMETRY_LOGGING_LEVEL. The short
// names below are accepted as well:
//
//	OPENAI_API_KEY        backend.api_key (required)
//	OPENAI_BASE_URL       backend.base_url
//	AZURE_API_VERSION     backend.api_version
//	REQUEST_TIMEOUT       backend.timeout (seconds)
//	MAX_RETRIES           backend.max_retries
//	HOST, PORT            proxy.listen_address
//	LOG_LEVEL             telemetry.logging.level
//	BIG_MODEL             models.big
//	MIDDLE_MODEL          models.middle (defaults to BIG_MODEL)
//	SMALL_MODEL           models.small
//	VISION_MODEL          models.vision
//	MAX_TOKENS_LIMIT      limits.max_tokens
//	MIN_TOKENS_LIMIT      limits.min_tokens
//	DISABLE_TOOLS         conversion.disable_tools
//	STRIP_IMAGE_CONTEXT   conversion.strip_image_context
//	ANTHROPIC_API_KEY     auth.client_api_key
//	CUSTOM_HEADER_<NAME>  backend.custom_headers (underscores become dashes)
//
// # Singleton
//
// Initialize loads the configuration once at startup; GetConfig returns it.
// A Watcher can reload the file on change; handlers that read GetConfig per
// request pick up new model mappings and limits without a restart.
package config
