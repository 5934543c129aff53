package command

import "encoding/json"

// Schema describes one tool to the model.
type Schema struct {
	Name        Name       `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

// Parameters is a JSON-schema object description.
type Parameters struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property is a single JSON-schema property.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

func object(required []string, props map[string]Property) Parameters {
	if props == nil {
		props = map[string]Property{}
	}
	return Parameters{Type: "object", Properties: props, Required: required}
}

// Schemas returns the tool list shown in the agent system prompt.
func Schemas() []Schema {
	return []Schema{
		{
			Name: NameSearch,
			Description: "Search inside file contents for information. Use when the user asks about " +
				"information WITHIN files (invoices, budgets, notes, specific data). Returns extracted facts.",
			Parameters: object([]string{"query"}, map[string]Property{
				"query": {Type: "string", Description: "What to search for in file contents"},
				"top_k": {Type: "integer", Description: "Number of results (default 5, max 10)"},
			}),
		},
		{
			Name:        NameCountFiles,
			Description: "Count files, optionally filtered by extension. Use for 'how many files/PDFs' questions.",
			Parameters: object(nil, map[string]Property{
				"extension": {Type: "string", Description: "File extension filter, e.g. pdf"},
			}),
		},
		{
			Name:        NameListFiles,
			Description: "List files sorted by date, size, or name. Use for 'biggest files', 'largest files', 'recent files'.",
			Parameters: object(nil, map[string]Property{
				"extension": {Type: "string", Description: "File extension filter"},
				"limit":     {Type: "integer", Description: "Max files to return (default 10)"},
				"sort_by":   {Type: "string", Description: "'date' (default), 'size', or 'name'"},
			}),
		},
		{
			Name:        NameGrepFiles,
			Description: "Find files by name pattern",
			Parameters: object([]string{"pattern"}, map[string]Property{
				"pattern": {Type: "string", Description: "Substring to match in filenames"},
			}),
		},
		{
			Name:        NameFileMetadata,
			Description: "Get file size and dates",
			Parameters: object([]string{"name_hint"}, map[string]Property{
				"name_hint": {Type: "string", Description: "Filename or partial name"},
			}),
		},
		{
			Name:        NameDirectoryTree,
			Description: "Show folder structure",
			Parameters: object(nil, map[string]Property{
				"max_depth": {Type: "integer", Description: "How deep to show (default 2)"},
			}),
		},
		{
			Name:        NameFolderStats,
			Description: "Show folder sizes and file counts. Supports extension filter and ascending order for 'least' queries.",
			Parameters: object(nil, map[string]Property{
				"sort_by":   {Type: "string", Description: "'size' or 'count'"},
				"limit":     {Type: "integer", Description: "Max folders to show"},
				"extension": {Type: "string", Description: "Filter by file extension, e.g. 'pdf'"},
				"order":     {Type: "string", Description: "'desc' (default) or 'asc' for least/smallest first"},
			}),
		},
		{
			Name:        NameDiskUsage,
			Description: "Show total disk usage summary with breakdown by file type",
			Parameters:  object(nil, nil),
		},
		{
			Name: NameRespond,
			Description: "Return a final answer to the user. ONLY call this when you have enough information " +
				"to answer. If you need more information, call another tool first.",
			Parameters: object([]string{"answer"}, map[string]Property{
				"answer": {Type: "string", Description: "Your complete answer to the user"},
			}),
		},
	}
}

// SchemaJSON is Schemas encoded for a prompt.
func SchemaJSON() string {
	b, err := json.Marshal(Schemas())
	if err != nil {
		return "[]"
	}
	return string(b)
}
