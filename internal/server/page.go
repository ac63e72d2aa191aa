package server

import (
	"bytes"
	_ "embed"
	"html/template"

	"github.com/gofiber/fiber/v2"
)

//go:embed index.html
var indexHTML string

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

type pageData struct {
	Dataset       string
	Rows          int
	UploadLimitMB int
}

func (s *Server) Index(c *fiber.Ctx) error {
	sess := s.session(c)
	data := pageData{UploadLimitMB: s.opt.UploadLimit >> 20}
	if ds := sess.Dataset(); ds != nil {
		data.Dataset, data.Rows = ds.Name(), ds.Len()
	}
	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, data); err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}
