// Package session emite, valida y revoca sesiones opacas por tenant.
//
// El token crudo viaja solo en la cookie sid_<tenant>; en storage queda el
// HMAC con pepper. Validate vuelve a comparar el tenant del registro contra
// el tenant pedido después de cada lookup, y trata igual a tokens ausentes,
// vencidos o adulterados: no hay sesión.
package session
