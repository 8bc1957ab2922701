package routes

import (
	"context"
	"io"
	"mime/multipart"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/tair/product-console/internal/catalog/controller"
	"github.com/tair/product-console/internal/catalog/domain"
	"github.com/tair/product-console/internal/catalog/view"
	"github.com/tair/product-console/internal/console/middleware"
	"github.com/tair/product-console/internal/console/session"
	"github.com/tair/product-console/pkg/logger"
)

type handler struct {
	sessions *session.Registry
	hub      *view.Hub
}

type selectFarmRequest struct {
	FarmID string `json:"farm_id"`
}

type editDescriptionRequest struct {
	Content string `json:"content"`
}

// respondError writes a controller error in the console error shape
func respondError(c *fiber.Ctx, err error) error {
	return c.Status(domain.HTTPStatus(err)).JSON(fiber.Map{
		"error": fiber.Map{
			"kind":    domain.KindOf(err),
			"message": domain.MessageOf(err, "Request failed"),
		},
	})
}

func (h *handler) ctrl(c *fiber.Ctx) *controller.Controller {
	return h.sessions.Get(middleware.SessionID(c))
}

// productIndex reads the :index path parameter
func productIndex(c *fiber.Ctx) (int, error) {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return 0, domain.Validation("Invalid product index")
	}
	return index, nil
}

func (h *handler) listFarms(c *fiber.Ctx) error {
	farms, err := h.ctrl(c).ListFarms(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	if farms == nil {
		farms = []domain.Farm{}
	}
	return c.JSON(fiber.Map{"farms": farms})
}

func (h *handler) snapshot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"session_id": middleware.SessionID(c),
		"page":       h.ctrl(c).Snapshot(),
	})
}

func (h *handler) selectFarm(c *fiber.Ctx) error {
	var req selectFarmRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, domain.Validation("Invalid request body"))
	}

	ctrl := h.ctrl(c)
	products, err := ctrl.SelectFarm(c.UserContext(), req.FarmID)
	if err != nil {
		return respondError(c, err)
	}
	if products == nil {
		products = []domain.Product{}
	}
	return c.JSON(fiber.Map{
		"farm_id":  req.FarmID,
		"products": products,
		"summary":  ctrl.Overall(),
	})
}

func (h *handler) generate(c *fiber.Ctx) error {
	index, err := productIndex(c)
	if err != nil {
		return respondError(c, err)
	}

	desc, err := h.ctrl(c).Generate(c.UserContext(), index)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(desc)
}

func (h *handler) regenerate(c *fiber.Ctx) error {
	index, err := productIndex(c)
	if err != nil {
		return respondError(c, err)
	}
	field := domain.FieldType(c.Params("type"))

	text, err := h.ctrl(c).Regenerate(c.UserContext(), index, field)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"type": field, "content": text})
}

func (h *handler) uploadImage(c *fiber.Ctx) error {
	index, err := productIndex(c)
	if err != nil {
		return respondError(c, err)
	}

	// a missing file goes to the controller as empty so it is rejected there
	var image domain.ImageFile
	if fh, err := c.FormFile("image"); err == nil {
		if image, err = readImage(fh); err != nil {
			logger.Warn(c.UserContext()).Err(err).Msg("Failed to read uploaded image")
			return respondError(c, domain.Validation("Could not read the selected file"))
		}
	}

	src, err := h.ctrl(c).UploadImage(c.UserContext(), index, image)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"image_src": src})
}

func readImage(fh *multipart.FileHeader) (domain.ImageFile, error) {
	f, err := fh.Open()
	if err != nil {
		return domain.ImageFile{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return domain.ImageFile{}, err
	}
	return domain.ImageFile{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Data:        data,
	}, nil
}

func (h *handler) editDescription(c *fiber.Ctx) error {
	index, err := productIndex(c)
	if err != nil {
		return respondError(c, err)
	}
	var req editDescriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, domain.Validation("Invalid request body"))
	}

	field := domain.FieldType(c.Params("type"))
	if err := h.ctrl(c).EditDescription(c.UserContext(), index, field, req.Content); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handler) confirm(c *fiber.Ctx) error {
	index, err := productIndex(c)
	if err != nil {
		return respondError(c, err)
	}

	ctrl := h.ctrl(c)
	if err := ctrl.Confirm(c.UserContext(), index); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"summary": ctrl.Overall()})
}

func (h *handler) enableEdit(c *fiber.Ctx) error {
	index, err := productIndex(c)
	if err != nil {
		return respondError(c, err)
	}

	ctrl := h.ctrl(c)
	if err := ctrl.EnableEdit(c.UserContext(), index); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"summary": ctrl.Overall()})
}

func (h *handler) export(c *fiber.Ctx) error {
	dl, err := h.ctrl(c).Export(c.UserContext(), c.Query("format"))
	if err != nil {
		return respondError(c, err)
	}

	c.Attachment(dl.Filename)
	c.Set(fiber.HeaderContentType, dl.ContentType)
	c.Set("X-Export-Rows", strconv.Itoa(dl.Rows))
	return c.Send(dl.Data)
}

// viewStream streams re-render messages of the caller's session
func (h *handler) viewStream(conn *websocket.Conn) {
	id, _ := conn.Locals(middleware.LocalSessionID).(string)
	ctrl := h.sessions.Get(id)

	ctx := logger.ContextWithSession(context.Background(), id)
	logger.Debug(ctx).Msg("View client connected")
	h.hub.Serve(ctx, id, conn, view.PageMessage(ctrl.Snapshot()))
}
