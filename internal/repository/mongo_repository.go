package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/formcraft/formcraft-backend/internal/model"
)

// Collection names of the document store.
const (
	FormsCollection     = "forms"
	ResponsesCollection = "responses"
)

// MongoFormRepository stores forms as MongoDB documents.
type MongoFormRepository struct {
	forms     *mongo.Collection
	responses *mongo.Collection
}

// NewMongoFormRepository creates a new MongoFormRepository.
func NewMongoFormRepository(db *mongo.Database) *MongoFormRepository {
	return &MongoFormRepository{
		forms:     db.Collection(FormsCollection),
		responses: db.Collection(ResponsesCollection),
	}
}

// Create inserts f. f.ID must already be set; timestamps are filled in.
func (r *MongoFormRepository) Create(ctx context.Context, f *model.Form) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	f.CreatedAt, f.UpdatedAt = now, now
	if _, err := r.forms.InsertOne(ctx, f); err != nil {
		return fmt.Errorf("insert form: %w", err)
	}
	return nil
}

// GetByID retrieves a form by its id.
func (r *MongoFormRepository) GetByID(ctx context.Context, id string) (*model.Form, error) {
	var f model.Form
	err := r.forms.FindOne(ctx, bson.M{"_id": id}).Decode(&f)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// List returns every form, newest first.
func (r *MongoFormRepository) List(ctx context.Context) ([]model.Form, error) {
	cur, err := r.forms.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	forms := []model.Form{}
	if err := cur.All(ctx, &forms); err != nil {
		return nil, err
	}
	return forms, nil
}

// Update overwrites the title, header image and questions of f.
func (r *MongoFormRepository) Update(ctx context.Context, f *model.Form) error {
	update := bson.M{"$set": bson.M{
		"title":               f.Title,
		"headerImage":         f.HeaderImage,
		"headerImagePublicId": f.HeaderImagePublicID,
		"questions":           f.Questions,
		"updatedAt":           time.Now().UTC().Truncate(time.Millisecond),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.forms.FindOneAndUpdate(ctx, bson.M{"_id": f.ID}, update, opts).Decode(f)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

// Delete removes a form and its responses.
func (r *MongoFormRepository) Delete(ctx context.Context, id string) error {
	res, err := r.forms.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	if _, err := r.responses.DeleteMany(ctx, bson.M{"formId": id}); err != nil {
		return fmt.Errorf("delete responses of form %s: %w", id, err)
	}
	return nil
}

// responseDocument is a Response as stored in MongoDB. Answers are kept as
// native BSON values instead of opaque JSON bytes.
type responseDocument struct {
	ID          string          `bson:"_id"`
	FormID      string          `bson:"formId"`
	Responses   []entryDocument `bson:"responses"`
	SubmittedAt time.Time       `bson:"submittedAt"`
	CreatedAt   time.Time       `bson:"createdAt"`
	UpdatedAt   time.Time       `bson:"updatedAt"`
}

type entryDocument struct {
	QuestionID   string             `bson:"questionId"`
	QuestionType model.QuestionType `bson:"questionType"`
	Answer       interface{}        `bson:"answer"`
}

func toResponseDocument(resp *model.Response) (*responseDocument, error) {
	doc := &responseDocument{
		ID:          resp.ID,
		FormID:      resp.FormID,
		Responses:   make([]entryDocument, len(resp.Responses)),
		SubmittedAt: resp.SubmittedAt,
		CreatedAt:   resp.CreatedAt,
		UpdatedAt:   resp.UpdatedAt,
	}
	for i, e := range resp.Responses {
		var answer interface{}
		if len(e.Answer) > 0 {
			if err := json.Unmarshal(e.Answer, &answer); err != nil {
				return nil, fmt.Errorf("entry %s: %w", e.QuestionID, err)
			}
		}
		doc.Responses[i] = entryDocument{QuestionID: e.QuestionID, QuestionType: e.QuestionType, Answer: answer}
	}
	return doc, nil
}

func (d *responseDocument) toModel() (*model.Response, error) {
	resp := &model.Response{
		ID:          d.ID,
		FormID:      d.FormID,
		Responses:   make([]model.Entry, len(d.Responses)),
		SubmittedAt: d.SubmittedAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	for i, e := range d.Responses {
		raw, err := json.Marshal(plain(e.Answer))
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.QuestionID, err)
		}
		resp.Responses[i] = model.Entry{QuestionID: e.QuestionID, QuestionType: e.QuestionType, Answer: raw}
	}
	return resp, nil
}

// plain converts decoded BSON containers into maps and slices so that they
// encode to JSON objects and arrays.
func plain(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Key] = plain(e.Value)
		}
		return m
	case bson.M:
		return plain(map[string]interface{}(t))
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, x := range t {
			m[k] = plain(x)
		}
		return m
	case bson.A:
		return plain([]interface{}(t))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, x := range t {
			out[i] = plain(x)
		}
		return out
	}
	return v
}

// MongoResponseRepository stores responses as MongoDB documents.
type MongoResponseRepository struct {
	forms     *mongo.Collection
	responses *mongo.Collection
}

// NewMongoResponseRepository creates a new MongoResponseRepository.
func NewMongoResponseRepository(db *mongo.Database) *MongoResponseRepository {
	return &MongoResponseRepository{
		forms:     db.Collection(FormsCollection),
		responses: db.Collection(ResponsesCollection),
	}
}

// Create inserts resp. A form id that does not exist yields ErrNotFound.
func (r *MongoResponseRepository) Create(ctx context.Context, resp *model.Response) error {
	n, err := r.forms.CountDocuments(ctx, bson.M{"_id": resp.FormID}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	resp.CreatedAt, resp.UpdatedAt = now, now
	doc, err := toResponseDocument(resp)
	if err != nil {
		return err
	}
	if _, err := r.responses.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert response: %w", err)
	}
	return nil
}

// GetByID retrieves a response by its id.
func (r *MongoResponseRepository) GetByID(ctx context.Context, id string) (*model.Response, error) {
	var doc responseDocument
	err := r.responses.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel()
}

// ListByForm returns the responses of a form, newest first.
func (r *MongoResponseRepository) ListByForm(ctx context.Context, formID string) ([]model.Response, error) {
	cur, err := r.responses.Find(ctx, bson.M{"formId": formID},
		options.Find().SetSort(bson.D{{Key: "submittedAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []responseDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]model.Response, 0, len(docs))
	for i := range docs {
		resp, err := docs[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, *resp)
	}
	return out, nil
}

// CountByForm returns the number of responses a form has received.
func (r *MongoResponseRepository) CountByForm(ctx context.Context, formID string) (int64, error) {
	return r.responses.CountDocuments(ctx, bson.M{"formId": formID})
}
