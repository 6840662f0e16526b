// Package i18n holds the user-facing strings of the dashboard and CLI in
// English and Portuguese.
package i18n

import (
	"fmt"

	"golang.org/x/text/language"
)

// Message identifies a translatable string.
type Message string

// Messages shown by the dashboard and CLI.
const (
	Title          Message = "RDP Server Monitor"
	RefreshAll     Message = "Refresh All"
	ConfigureIT    Message = "Configure IT"
	AddServer      Message = "Add Server"
	Loading        Message = "Loading..."
	Search         Message = "Search:"
	ConnectedUsers Message = "Connected users:"
	Processes      Message = "Monitored Processes:"
	Services       Message = "Monitored Services:"
	ITDetected     Message = "IT detected:"
	LastUpdate     Message = "Last Update"
	Next           Message = "Next"
	NoServers      Message = "No servers configured"
	NoMatches      Message = "No servers match the filter"
	NoUsers        Message = "No users connected"
	NotConfigured  Message = "not configured"
	Unreachable    Message = "Unreachable"
	ConfirmDelete  Message = "Are you sure you want to delete the server '%s'?"
	Servers        Message = "servers"
	Alerts         Message = "alerts"
	Quit           Message = "quit"
	Refresh        Message = "refresh"
	Select         Message = "select"
	Filter         Message = "filter"
	RefreshOne     Message = "refresh selected"
	Help           Message = "help"
	StatusSummary  Message = "%d servers, %d IT sessions, refreshed %s"
)

var catalog = map[language.Tag]map[Message]string{
	language.Portuguese: {
		Title:          "Monitor de Servidores RDP",
		RefreshAll:     "Atualizar Todos",
		ConfigureIT:    "Configurar TI",
		AddServer:      "Adicionar Servidor",
		Loading:        "Carregando...",
		Search:         "Pesquisar:",
		ConnectedUsers: "Usuários conectados:",
		Processes:      "Processos Monitorados:",
		Services:       "Serviços Monitorados:",
		ITDetected:     "TI detectado:",
		LastUpdate:     "Última Atualização",
		Next:           "Próxima",
		NoServers:      "Nenhum servidor configurado",
		NoMatches:      "Nenhum servidor corresponde ao filtro",
		NoUsers:        "Nenhum usuário conectado",
		NotConfigured:  "não configurado",
		Unreachable:    "Inacessível",
		ConfirmDelete:  "Tem certeza de que deseja excluir o servidor '%s'?",
		Servers:        "servidores",
		Alerts:         "alertas",
		Quit:           "sair",
		Refresh:        "atualizar",
		Select:         "selecionar",
		Filter:         "filtrar",
		RefreshOne:     "atualizar selecionado",
		Help:           "ajuda",
		StatusSummary:  "%d servidores, %d sessões de TI, atualizado às %s",
	},
}

var matcher = language.NewMatcher([]language.Tag{language.English, language.Portuguese})

// Supported reports whether lang resolves to one of the shipped catalogs.
func Supported(lang string) bool {
	tag, err := language.Parse(lang)
	if err != nil {
		return false
	}
	_, _, conf := matcher.Match(tag)
	return conf != language.No
}

// Translator looks up strings for one language. The zero value and nil
// translate to English.
type Translator struct {
	tag     language.Tag
	strings map[Message]string
}

// New returns a translator for lang ("en", "pt", "pt-BR", ...). Unknown or
// unparseable languages fall back to English.
func New(lang string) *Translator {
	tag, err := language.Parse(lang)
	if err != nil {
		return &Translator{tag: language.English}
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No || idx == 0 {
		return &Translator{tag: language.English}
	}
	return &Translator{tag: language.Portuguese, strings: catalog[language.Portuguese]}
}

// Language returns the resolved language tag, e.g. "en" or "pt".
func (t *Translator) Language() string {
	if t == nil || t.tag == language.Und {
		return language.English.String()
	}
	return t.tag.String()
}

// T returns the translation of m, or m itself when there is none.
func (t *Translator) T(m Message) string {
	if t != nil {
		if s, ok := t.strings[m]; ok {
			return s
		}
	}
	return string(m)
}

// Tf translates m and formats it with args.
func (t *Translator) Tf(m Message, args ...interface{}) string {
	return fmt.Sprintf(t.T(m), args...)
}
