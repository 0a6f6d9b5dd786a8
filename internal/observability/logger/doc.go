// Package logger expone un logger Zap singleton con scoping por contexto.
//
// Init se llama una vez desde main; el resto del código usa From(ctx), que
// devuelve el logger inyectado por el middleware HTTP (request_id, tenant_id)
// o el singleton si no hay uno en el contexto.
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Issue"))
//	log.Info("session issued", logger.SubjectID(id))
//
// "dev" escribe en consola con colores, "prod" escribe JSON.
//
// Nunca se loguean tokens crudos; para digests usar DigestPrefix.
package logger
