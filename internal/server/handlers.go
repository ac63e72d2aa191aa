package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/KaramelBytes/insightcopilot/internal/app"
)

func (s *Server) Session(c *fiber.Ctx) error {
	sess := s.session(c)
	res := SessionResponse{ID: sess.ID}
	if ds := sess.Dataset(); ds != nil {
		res.Dataset, res.Rows = ds.Name(), ds.Len()
	}
	return c.JSON(res)
}

func (s *Server) EndSession(c *fiber.Ctx) error {
	if id := c.Cookies(cookieName); id != "" {
		s.store.Delete(id)
	}
	c.ClearCookie(cookieName)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) Upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart field \"file\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "cannot open uploaded file")
	}
	defer f.Close()

	sess := s.session(c)
	res := s.svc.Upload(c.UserContext(), sess, fh.Filename, f)
	if res.Notice != nil && res.Notice.Level == app.LevelError {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(res)
	}
	return c.JSON(res)
}

func (s *Server) Preview(c *fiber.Ctx) error {
	var q PreviewQuery
	if err := c.QueryParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "n must be an integer")
	}
	if err := ValidateRequest(q); err != nil {
		return err
	}
	return c.JSON(s.svc.Preview(s.session(c), q.N))
}

func (s *Server) Summary(c *fiber.Ctx) error {
	return c.JSON(s.svc.Describe(s.session(c)))
}

func (s *Server) Insights(c *fiber.Ctx) error {
	res := s.svc.Insights(c.UserContext(), s.session(c))
	return c.JSON(s.text(res))
}

func (s *Server) Ask(c *fiber.Ctx) error {
	var req AskRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := ValidateRequest(req); err != nil {
		return err
	}
	res := s.svc.Ask(c.UserContext(), s.session(c), req.Question)
	return c.JSON(s.text(res))
}

func (s *Server) SuggestChart(c *fiber.Ctx) error {
	res := s.svc.SuggestChart(c.UserContext(), s.session(c))
	return c.JSON(s.text(res))
}

func (s *Server) Chart(c *fiber.Ctx) error {
	var req ChartRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
		}
	}
	if err := ValidateRequest(req); err != nil {
		return err
	}
	return c.JSON(s.svc.GenerateChart(c.UserContext(), s.session(c), req.Prompt))
}

func (s *Server) ChartSVG(c *fiber.Ctx) error {
	fig, _ := s.session(c).LastChart()
	if fig == nil {
		return fiber.NewError(fiber.StatusNotFound, "no chart generated yet")
	}
	c.Set(fiber.HeaderContentType, "image/svg+xml")
	return c.SendString(fig.SVG(0, 0))
}

func (s *Server) ChartHTML(c *fiber.Ctx) error {
	fig, _ := s.session(c).LastChart()
	if fig == nil {
		return fiber.NewError(fiber.StatusNotFound, "no chart generated yet")
	}
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="chart.html"`)
	c.Type("html", "utf-8")
	return c.SendString(fig.HTML())
}

func (s *Server) text(res *app.TextResult) TextResponse {
	out := TextResponse{TextResult: res}
	if res.Text != "" {
		out.HTML = s.render(res.Text)
	}
	return out
}
