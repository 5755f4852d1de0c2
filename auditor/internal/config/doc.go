// Package config loads and watches the auditor configuration file.
//
// Top-level types:
//   - Config{Log, Rules, Pipeline, Source, Store, Narrative, Notify, Server}
//   - RulesConfig: every threshold of the baseline, rule and status logic;
//     DefaultRules() holds the production values
//   - SourceConfig / StoreConfig: backend selection (postgres|xlsx|json and
//     postgres|memory), table, dsn_env
//   - NarrativeConfig: llm|static, OpenAI-compatible endpoint, model, api_key_env
//   - NotifyConfig / SenderConfig: smtp | webhook | amqp | telegram channels
//   - ServerConfig / AuthConfig: HTTP port, apikey|none, WebSocket interval
//
// Secrets never live in the YAML file. Fields ending in _env name an
// environment variable that accessor methods (DSN, APIKey, Password, URL,
// Token, Key) resolve at call time. LoadEnv populates the environment from
// .env files first.
//
// Load(path) applies defaults, unmarshals, then validates. Watch(ctx, path,
// onChange) hot-reloads the file via fsnotify; callers decide which fields
// may change at runtime (the server swaps rule thresholds between batches).
package config
