package builtin

import (
	"context"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/retrieval"
	"github.com/hupe1980/taskmesh/tool"
)

// DefaultTopK is the number of chunks rag.query returns unless asked otherwise.
const DefaultTopK = 5

type ragIndex struct {
	svc retrieval.Service
}

func ragIndexDescriptor(svc retrieval.Service) tool.Descriptor {
	return tool.Descriptor{
		Name:    "rag.index",
		Summary: "Index local files or directories into a retrieval collection.",
		Params: []tool.ParamSpec{
			tool.RequiredParam("paths", core.KindStringList, "files or directories to index"),
			tool.Param("collection", core.KindString, "target collection, default \"default\""),
		},
		Executor: &ragIndex{svc: svc},
	}
}

func (t *ragIndex) Execute(ctx context.Context, args tool.Args) (any, error) {
	return t.svc.Index(ctx, args.StringList("paths"), args.StringOr("collection", retrieval.DefaultCollection))
}

type ragQuery struct {
	svc retrieval.Service
}

func ragQueryDescriptor(svc retrieval.Service) tool.Descriptor {
	return tool.Descriptor{
		Name:    "rag.query",
		Summary: "Retrieve the chunks most relevant to a query.",
		Params: []tool.ParamSpec{
			tool.RequiredParam("query", core.KindString, "search query"),
			tool.Param("collections", core.KindStringList, "collections to search, default all"),
			tool.Param("k", core.KindInt, "number of chunks, default 5"),
		},
		Executor: &ragQuery{svc: svc},
	}
}

func (t *ragQuery) Execute(ctx context.Context, args tool.Args) (any, error) {
	k := int(args.IntOr("k", DefaultTopK))
	if k <= 0 {
		k = DefaultTopK
	}
	chunks, err := t.svc.Retrieve(ctx, args.String("query"), args.StringList("collections"), k)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"query":   args.String("query"),
		"results": chunks,
		"count":   len(chunks),
	}, nil
}
