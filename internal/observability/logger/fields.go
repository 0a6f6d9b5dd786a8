package logger

import (
	"go.uber.org/zap"
)

// ---- HTTP ----

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }
func Bytes(v int) zap.Field        { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }
func UserAgent(v string) zap.Field { return zap.String("user_agent", v) }

// ---- Dominio ----

// TenantID identifica la app (tenant).
func TenantID(v string) zap.Field { return zap.String("tenant_id", v) }

// SubjectID identifica al end user dentro del tenant.
func SubjectID(v string) zap.Field { return zap.String("subject_id", v) }

func Provider(v string) zap.Field       { return zap.String("provider", v) }
func EventID(v string) zap.Field        { return zap.String("event_id", v) }
func EventType(v string) zap.Field      { return zap.String("event_type", v) }
func AccountID(v string) zap.Field      { return zap.String("account_id", v) }
func SubscriptionID(v string) zap.Field { return zap.String("subscription_id", v) }
func PaymentID(v string) zap.Field      { return zap.String("payment_id", v) }

// DigestPrefix loguea solo los primeros 8 caracteres de un digest de sesión.
func DigestPrefix(digest string) zap.Field {
	if len(digest) > 8 {
		digest = digest[:8]
	}
	return zap.String("digest_prefix", digest)
}

// ---- Sistema ----

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Err(err error) zap.Field      { return zap.Error(err) }

func Count(v int) zap.Field             { return zap.Int("count", v) }
func String(key, v string) zap.Field    { return zap.String(key, v) }
func Int(key string, v int) zap.Field   { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
func Any(key string, v any) zap.Field   { return zap.Any(key, v) }
