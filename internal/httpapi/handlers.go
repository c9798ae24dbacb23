package httpapi

import (
	"context"
	"net/http"

	"github.com/oggyb/campus-connect/internal/service/campus"
)

// call adapts one Campus method to an HTTP handler. bind fills the request
// from the body, path and query; status is used on success.
func call[Req, Resp any](status int, bind func(*http.Request, *Req) error, fn func(context.Context, *Req) (*Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := new(Req)
		if err := bind(r, req); err != nil {
			writeError(w, err)
			return
		}
		resp, err := fn(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, status, resp)
	}
}

func fromBody[Req any](r *http.Request, req *Req) error {
	return decodeBody(r, req)
}

func noBody[Req any](*http.Request, *Req) error { return nil }

func (h *Handler) swipe() http.HandlerFunc {
	return call(http.StatusOK, fromBody[campus.SwipeRequest], h.svc.Swipe)
}

func (h *Handler) block() http.HandlerFunc {
	return call(http.StatusOK, fromBody[campus.BlockRequest], h.svc.Block)
}

func (h *Handler) unblock() http.HandlerFunc {
	return call(http.StatusOK, func(r *http.Request, req *campus.BlockRequest) (err error) {
		req.TargetID, err = pathID(r, "targetID")
		return err
	}, h.svc.Unblock)
}

func (h *Handler) recommend() http.HandlerFunc {
	return call(http.StatusOK, func(r *http.Request, req *campus.RecommendRequest) (err error) {
		req.Limit, err = queryInt(r, "limit")
		return err
	}, h.svc.Recommend)
}

func (h *Handler) sendDirect() http.HandlerFunc {
	return call(http.StatusCreated, fromBody[campus.SendDirectRequest], h.svc.SendDirect)
}

func (h *Handler) sendGroup() http.HandlerFunc {
	return call(http.StatusCreated, fromBody[campus.SendGroupRequest], h.svc.SendGroup)
}

func (h *Handler) markDirectRead() http.HandlerFunc {
	return call(http.StatusOK, func(r *http.Request, req *campus.MarkDirectReadRequest) (err error) {
		req.CounterpartID, err = pathID(r, "counterpartID")
		return err
	}, h.svc.MarkDirectRead)
}

func (h *Handler) markGroupRead() http.HandlerFunc {
	return call(http.StatusOK, func(r *http.Request, req *campus.MarkGroupReadRequest) (err error) {
		req.GroupID, err = pathID(r, "groupID")
		return err
	}, h.svc.MarkGroupRead)
}

func (h *Handler) unreadCounts() http.HandlerFunc {
	return call(http.StatusOK, noBody[campus.Empty], h.svc.UnreadCounts)
}

func (h *Handler) listMessages() http.HandlerFunc {
	return call(http.StatusOK, func(r *http.Request, req *campus.ListMessagesRequest) (err error) {
		req.RoomID = chiParam(r, "roomID")
		req.PageToken = r.URL.Query().Get("page_token")
		req.Limit, err = queryInt(r, "limit")
		return err
	}, h.svc.ListMessages)
}

func (h *Handler) createGroup() http.HandlerFunc {
	return call(http.StatusCreated, fromBody[campus.CreateGroupRequest], h.svc.CreateGroup)
}

func (h *Handler) addGroupMember() http.HandlerFunc {
	return call(http.StatusOK, func(r *http.Request, req *campus.AddGroupMemberRequest) error {
		if err := decodeBody(r, req); err != nil {
			return err
		}
		id, err := pathID(r, "groupID")
		req.GroupID = id
		return err
	}, h.svc.AddGroupMember)
}

// healthz reports whether the database and, when configured, Redis answer.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"db": "ok"}
	code := http.StatusOK

	sqlDB, err := h.appCtx.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		status["db"] = "down"
		code = http.StatusServiceUnavailable
	}
	if h.appCtx.RedisCache != nil {
		status["redis"] = "ok"
		if err := h.appCtx.RedisCache.Ping(r.Context()); err != nil {
			status["redis"] = "down"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, status)
}
