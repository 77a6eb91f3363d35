package models

// Workspace is the top of the resource hierarchy.
type Workspace struct {
	ID         string `bson:"_id,omitempty" json:"id"`
	Name       string `bson:"name" json:"name"`
	OwnerID    string `bson:"ownerId" json:"ownerId"`
	IsArchived bool   `bson:"isArchived" json:"isArchived"`
	CreatedAt  int    `bson:"createdAt" json:"createdAt"`
	UpdatedAt  int    `bson:"updatedAt" json:"updatedAt"`
}

// Subspace groups documents inside a workspace.
type Subspace struct {
	ID          string `bson:"_id,omitempty" json:"id"`
	WorkspaceID string `bson:"workspaceId" json:"workspaceId"`
	Name        string `bson:"name" json:"name"`
	CreatedAt   int    `bson:"createdAt" json:"createdAt"`
	UpdatedAt   int    `bson:"updatedAt" json:"updatedAt"`
}

// Group is a named set of users. Group grants apply to every member.
type Group struct {
	ID          string `bson:"_id,omitempty" json:"id"`
	WorkspaceID string `bson:"workspaceId" json:"workspaceId"`
	Name        string `bson:"name" json:"name"`
	OwnerID     string `bson:"ownerId" json:"ownerId"`
	CreatedAt   int    `bson:"createdAt" json:"createdAt"`
}

// Document is the leaf resource. SubspaceID and ParentID are optional:
// a document can hang directly off a workspace, and documents form a
// tree among themselves.
type Document struct {
	ID          string `bson:"_id,omitempty" json:"id"`
	WorkspaceID string `bson:"workspaceId" json:"workspaceId"`
	SubspaceID  string `bson:"subspaceId,omitempty" json:"subspaceId,omitempty"`
	ParentID    string `bson:"parentId,omitempty" json:"parentId,omitempty"`
	AuthorID    string `bson:"authorId" json:"authorId"`
	Title       string `bson:"title" json:"title"`
	IsPublic    bool   `bson:"isPublic" json:"isPublic"`
	CreatedAt   int    `bson:"createdAt" json:"createdAt"`
	UpdatedAt   int    `bson:"updatedAt" json:"updatedAt"`
}
