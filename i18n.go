package auth

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// spanish holds the Spanish catalog keyed by the English source string
var spanish = map[string]string{
	"Home":                                  "Inicio",
	"Login":                                 "Iniciar sesión",
	"Logout":                                "Cerrar sesión",
	"Sign in":                               "Entrar",
	"Submit":                                "Enviar",
	"Send":                                  "Enviar",
	"Username":                              "Nombre de usuario",
	"Username or email":                     "Nombre de usuario o correo",
	"Email":                                 "Correo electrónico",
	"Password":                              "Contraseña",
	"New password":                          "Nueva contraseña",
	"Retype new password":                   "Repite la nueva contraseña",
	"Confirm password":                      "Confirmar contraseña",
	"Remember me":                           "Recordarme",
	"Locale":                                "Idioma",
	"Timezone":                              "Zona horaria",
	"must be unique":                        "debe ser único",
	"Forgot your password?":                 "¿Olvidaste tu contraseña?",
	"Reset password":                        "Restablecer contraseña",
	"Invite":                                "Invitar",
	"Sign up":                               "Registrarse",
	"Reauthenticate":                        "Reautenticar",
	"Please confirm your password":          "Por favor confirma tu contraseña",
	"Your id":                               "Tu identificador",
	"Joined":                                "Registrado",
	"Invitations left":                      "Invitaciones restantes",
	"Invalid credentials":                   "Credenciales inválidas",
	"Logged in successfully":                "Sesión iniciada correctamente",
	"User is not active":                    "El usuario no está activo",
	"A password reset token has been sent":  "Se ha enviado un token para restablecer la contraseña",
	"Invalid password reset token provided": "El token para restablecer la contraseña no es válido",
	"Password updated, you may now login":   "Contraseña actualizada, ya puedes iniciar sesión",
	"Error updating password, contact an admin": "Error al actualizar la contraseña, contacta a un administrador",
	"You have no invitations left":              "No te quedan invitaciones",
	"Invitation sent!":                          "¡Invitación enviada!",
	"Failed to create or send invitation":       "No se pudo crear o enviar la invitación",
	"Token is not valid":                        "El token no es válido",
	"User created correctly, please login":      "Usuario creado correctamente, por favor inicia sesión",
	"A user with those details already exists":  "Ya existe un usuario con esos datos",
	"Failed to create user":                     "No se pudo crear el usuario",
	"Please login to continue":                  "Por favor inicia sesión para continuar",
	"Please reauthenticate to access this page": "Por favor vuelve a autenticarte para acceder a esta página",
	"Forbidden":              "Prohibido",
	"Page not found":         "Página no encontrada",
	"Internal server error":  "Error interno del servidor",
	"Please review the form": "Por favor revisa el formulario",
}

// Translator picks the locale of a request and translates strings
type Translator struct {
	languages []string
	tags      []language.Tag
	matcher   language.Matcher
	fallback  string
	catalog   *catalog.Builder
}

// NewTranslator supports languages, the first entry used as fallback when
// fallback is empty or unsupported.
func NewTranslator(languages []string, fallback string) (*Translator, error) {
	if len(languages) == 0 {
		languages = []string{DefaultLocale}
	}

	tags := make([]language.Tag, 0, len(languages))
	for _, l := range languages {
		tag, err := language.Parse(l)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}

	t := &Translator{
		languages: languages,
		tags:      tags,
		matcher:   language.NewMatcher(tags),
		fallback:  languages[0],
		catalog:   catalog.NewBuilder(catalog.Fallback(language.English)),
	}

	if t.Supports(fallback) {
		t.fallback = fallback
	}

	for key, msg := range spanish {
		if err := t.catalog.SetString(language.Spanish, key, msg); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// Languages returns the supported locales
func (t *Translator) Languages() []string {
	return t.languages
}

// Default returns the fallback locale
func (t *Translator) Default() string {
	return t.fallback
}

// Supports reports whether locale is configured
func (t *Translator) Supports(locale string) bool {
	for _, l := range t.languages {
		if l == locale {
			return true
		}
	}
	return false
}

// Match returns the best supported locale for an Accept-Language header
func (t *Translator) Match(acceptLanguage string) string {
	if acceptLanguage == "" {
		return t.fallback
	}

	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return t.fallback
	}

	_, index, confidence := t.matcher.Match(tags...)
	if confidence == language.No || index < 0 || index >= len(t.languages) {
		return t.fallback
	}
	return t.languages[index]
}

// Locale prefers the locale of the current user, then acceptLanguage
func (t *Translator) Locale(c Locals, acceptLanguage string) string {
	if user, ok := CurrentUser(c); ok && t.Supports(user.Locale) {
		return user.Locale
	}
	return t.Match(acceptLanguage)
}

// T translates key into locale
func (t *Translator) T(locale, key string, args ...any) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag, message.Catalog(t.catalog)).Sprintf(key, args...)
}

// Func returns a template friendly translation function bound to locale
func (t *Translator) Func(locale string) func(key string, args ...any) string {
	return func(key string, args ...any) string {
		return t.T(locale, key, args...)
	}
}
