package language

import "github.com/vektah/gqlparser/v2/ast"

type (
	Schema              = ast.Schema
	Source              = ast.Source
	QueryDocument       = ast.QueryDocument
	OperationDefinition = ast.OperationDefinition
	SelectionSet        = ast.SelectionSet
	Selection           = ast.Selection
	Field               = ast.Field
	InlineFragment      = ast.InlineFragment
	FragmentSpread      = ast.FragmentSpread
	FragmentDefinition  = ast.FragmentDefinition
	Directive           = ast.Directive
	DirectiveList       = ast.DirectiveList
	Definition          = ast.Definition
	FieldDefinition     = ast.FieldDefinition
	Type                = ast.Type
	Path                = ast.Path
	PathName            = ast.PathName
	PathIndex           = ast.PathIndex
)

type Operation = ast.Operation

type DefinitionKind = ast.DefinitionKind

const (
	Query        Operation = ast.Query
	Mutation     Operation = ast.Mutation
	Subscription Operation = ast.Subscription

	Object    DefinitionKind = ast.Object
	Interface DefinitionKind = ast.Interface
	Union     DefinitionKind = ast.Union
	Scalar    DefinitionKind = ast.Scalar
	Enum      DefinitionKind = ast.Enum
)
