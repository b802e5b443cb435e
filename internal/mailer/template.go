package mailer

import (
	"bytes"
	"embed"
	"strings"
	"text/template"
	"time"
)

const (
	companyName   = "KVH Productie Dashboard"
	footerContact = "info@kvh.nl | tel +31 (0) 73 5992255"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

type bodyData struct {
	Name        string
	Title       string
	Period      string
	GeneratedAt string
	Company     string
	Contact     string
}

func newBodyData(to string, generatedAt time.Time) bodyData {
	return bodyData{
		Name:        recipientName(to),
		GeneratedAt: generatedAt.Format("02-01-2006 15:04"),
		Company:     companyName,
		Contact:     footerContact,
	}
}

func renderBody(name string, data bodyData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// recipientName greets by the local part of the address.
func recipientName(addr string) string {
	if i := strings.IndexByte(addr, '@'); i > 0 {
		return addr[:i]
	}
	return addr
}
