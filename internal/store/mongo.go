package store

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gyaneshwarpardhi/livefeed/internal/filter"
	"github.com/gyaneshwarpardhi/livefeed/internal/source"
)

// Mongo reads event collections with one aggregation per query; actor
// profiles are joined with $lookup.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongo connects to MongoDB and pings the primary.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	slog.Info("connected to mongo", "database", database)
	return &Mongo{client: client, db: client.Database(database)}, nil
}

func (m *Mongo) Fetch(ctx context.Context, q Query) ([]source.Row, error) {
	pipeline, err := pipelineFor(q)
	if err != nil {
		return nil, err
	}
	cur, err := m.db.Collection(q.Entity).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongo aggregate %s: %w", q.Entity, err)
	}
	defer cur.Close(ctx)

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo decode %s: %w", q.Entity, err)
	}
	rows := make([]source.Row, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, source.Row(plainMap(d)))
	}
	return rows, nil
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func pipelineFor(q Query) (mongo.Pipeline, error) {
	conds := bson.A{}
	if !q.Since.IsZero() {
		conds = append(conds, bson.D{{Key: q.TimeColumn, Value: bson.D{{Key: "$gt", Value: q.Since}}}})
	}
	for _, c := range q.Where {
		cond, err := bsonConstraint(c)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	match := bson.D{}
	if len(conds) > 0 {
		match = bson.D{{Key: "$and", Value: conds}}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: q.TimeColumn, Value: -1}, {Key: "_id", Value: -1}}}},
	}
	if q.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: q.Limit}})
	}
	for _, ref := range q.Relations {
		pipeline = append(pipeline,
			bson.D{{Key: "$lookup", Value: bson.D{
				{Key: "from", Value: source.ProfileEntity},
				{Key: "localField", Value: ref.Column},
				{Key: "foreignField", Value: "_id"},
				{Key: "as", Value: ref.Relation},
			}}},
			bson.D{{Key: "$unwind", Value: bson.D{
				{Key: "path", Value: "$" + ref.Relation},
				{Key: "preserveNullAndEmptyArrays", Value: true},
			}}},
		)
	}
	return pipeline, nil
}

func bsonConjunction(cs []filter.Constraint) (bson.D, error) {
	all := make(bson.A, 0, len(cs))
	for _, c := range cs {
		d, err := bsonConstraint(c)
		if err != nil {
			return nil, err
		}
		all = append(all, d)
	}
	return bson.D{{Key: "$and", Value: all}}, nil
}

// bsonConstraint renders one constraint as a query document.
func bsonConstraint(c filter.Constraint) (bson.D, error) {
	switch {
	case c.Any != nil:
		alts := make(bson.A, 0, len(c.Any))
		for _, alt := range c.Any {
			d, err := bsonConjunction(alt)
			if err != nil {
				return nil, err
			}
			alts = append(alts, d)
		}
		return bson.D{{Key: "$or", Value: alts}}, nil
	case c.Not != nil:
		d, err := bsonConjunction(c.Not)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$nor", Value: bson.A{d}}}, nil
	}

	if c.Op == filter.OpContains {
		pattern := regexp.QuoteMeta(fmt.Sprint(c.Value))
		return bson.D{{Key: c.Column, Value: bson.D{{Key: "$regex", Value: pattern}}}}, nil
	}
	ops := map[filter.Operator]string{
		filter.OpEq: "$eq", filter.OpNeq: "$ne",
		filter.OpGt: "$gt", filter.OpGte: "$gte",
		filter.OpLt: "$lt", filter.OpLte: "$lte",
	}
	op, ok := ops[c.Op]
	if !ok {
		return nil, fmt.Errorf("mongo: unsupported constraint %s", c)
	}
	return bson.D{{Key: c.Column, Value: bson.D{{Key: op, Value: c.Value}}}}, nil
}

// plainMap converts decoded bson into plain Go values: nested documents
// become map[string]any, ObjectIDs hex strings, DateTimes time.Time.
func plainMap(d bson.M) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		if k == "_id" {
			out["id"] = plainValue(v)
		}
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch x := v.(type) {
	case bson.M:
		return plainMap(x)
	case bson.D:
		return plainMap(x.Map())
	case bson.A:
		out := make([]any, len(x))
		for i := range x {
			out[i] = plainValue(x[i])
		}
		return out
	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.Decimal128:
		return x.String()
	}
	return v
}
