package realtime

import (
	"context"

	"simplic/internal/project"
	"simplic/internal/protocol"

	"go.uber.org/zap"
)

// handleMessage validates a client message, runs it against the workspace
// and replies with a result or an error carrying the request ID.
func (s *Server) handleMessage(c *client, raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		reply, _ := protocol.NewErrorMessage(protocol.ErrInvalidMessage, err.Error())
		c.enqueue(reply)
		return
	}

	result, err := s.dispatch(c.ctx, msg)
	if err != nil {
		s.log.Debug("command failed", zap.String("type", msg.Type), zap.Error(err))
		reply, mErr := protocol.NewErrorReply(msg.ID, err)
		if mErr == nil {
			c.enqueue(reply)
		}
		return
	}

	reply, err := protocol.NewReply(msg.ID, result)
	if err != nil {
		s.log.Warn("encode reply failed", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	c.enqueue(reply)
}

type ok struct {
	Status string `json:"status"`
}

type pathResult struct {
	Path string `json:"path"`
}

func (s *Server) dispatch(ctx context.Context, msg *protocol.Message) (interface{}, error) {
	ws := s.ws

	switch msg.Type {
	case protocol.TypeProjectList:
		var p protocol.ProjectListPayload
		if err := protocol.Decode(msg, &p); err != nil {
			return nil, err
		}
		return ws.ListProjects(ctx, p.Query)

	case protocol.TypeProjectCreate:
		var p protocol.ProjectCreatePayload
		if err := protocol.Decode(msg, &p); err != nil {
			return nil, err
		}
		typ := project.PyToExe
		if p.Type != "" {
			t, err := project.ParseType(p.Type)
			if err != nil {
				return nil, err
			}
			typ = t
		}
		return ws.CreateProject(ctx, p.Name, typ)

	case protocol.TypeProjectOpen:
		var p protocol.ProjectOpenPayload
		if err := protocol.Decode(msg, &p); err != nil {
			return nil, err
		}
		if p.Path != "" {
			return ws.OpenPath(ctx, p.Path)
		}
		return ws.OpenProject(ctx, p.Name)

	case protocol.TypeTreeList:
		var p protocol.TreeListPayload
		if err := protocol.Decode(msg, &p); err != nil {
			return nil, err
		}
		if p.Depth > 0 && p.Dir == "" {
			return ws.WalkTree(ctx, p.Depth)
		}
		return ws.ListTree(ctx, p.Dir)

	case protocol.TypeTreeCreate, protocol.TypeTreeMkdir:
		var p protocol.TreeCreatePayload
		if err := protocol.Decode(msg, &p); err != nil {
			return nil, err
		}
		create := ws.CreateFile
		if msg.Type == protocol.TypeTreeMkdir {
			create = ws.CreateDir
		}
		path, err := create(ctx, p.Dir, p.Name)
		if err != nil {
			return nil, err
		}
		return pathResult{Path: path}, nil

	case protocol.TypeTreeDelete:
		var p protocol.TreePathPayload
		if err := protocol.Decode(msg, &p); err != nil {
			return nil, err
		}
		if err := ws.DeletePath(ctx, p.Path); err != nil {
			return nil, err
		}
		return ok{Status: "deleted"}, nil

	case protocol.TypeTreeRename:
		var p protocol.TreeRenamePayload
		if err := protocol.Decode(msg, &p); err != nil {
			return nil, err
		}
		path, err := ws.RenamePath(ctx, p.Path, p.NewName)
		if err != nil {
			return nil, err
		}
		return pathResult{Path: path}, nil

	case protocol.TypeTabOpen:
		var p protocol.TabOpenPayload
		if err := protocol.Decode(msg, &p); err != nil {
			return nil, err
		}
		return ws.OpenTab(ctx, p.Path)

	case protocol.TypeTabEdit:
		var p protocol.TabEditPayload
		if err := protocol.Decode(msg, &p); err != nil {
			return nil, err
		}
		return ws.EditTab(ctx, p.Filename, p.Content)

	case protocol.TypeTabSave, protocol.TypeTabClose, protocol.TypeTabFocus:
		var p protocol.TabPayload
		if err := protocol.Decode(msg, &p); err != nil {
			return nil, err
		}
		switch msg.Type {
		case protocol.TypeTabSave:
			return ws.SaveTab(ctx, p.Filename)
		case protocol.TypeTabFocus:
			return ws.FocusTab(ctx, p.Filename)
		}
		if err := ws.CloseTab(ctx, p.Filename); err != nil {
			return nil, err
		}
		return ok{Status: "closed"}, nil

	case protocol.TypeJobRun:
		return ws.RunProject(ctx)

	case protocol.TypeJobDebug:
		return ws.DebugProject(ctx)

	case protocol.TypeJobBuild:
		return ws.StartBuild(ctx)

	case protocol.TypeJobCancel:
		var p protocol.JobCancelPayload
		if err := protocol.Decode(msg, &p); err != nil {
			return nil, err
		}
		if err := ws.CancelJob(ctx, p.JobID); err != nil {
			return nil, err
		}
		return ok{Status: "canceling"}, nil
	}

	return nil, nil
}
