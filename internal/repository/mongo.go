package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"daily-tracker/internal/metrics"
	"daily-tracker/internal/model"
)

// ConnectMongo opens a client and checks the server is reachable.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is not set")
	}
	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(100).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(60 * time.Second).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// EnsureMongoIndexes creates the lookup indexes used by the mongo stores.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(tasksCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create task index: %w", err)
	}
	_, err = db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "telegram_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create user index: %w", err)
	}
	return nil
}

// MongoTaskRepository is the mongo-backed task store.
type MongoTaskRepository struct {
	coll *mongo.Collection
}

func NewMongoTaskRepository(db *mongo.Database) *MongoTaskRepository {
	return &MongoTaskRepository{coll: db.Collection(tasksCollection)}
}

func (r *MongoTaskRepository) FetchTasks(ctx context.Context, userID string) ([]model.Task, error) {
	timer := metrics.TrackStoreOperation("fetch", tasksCollection)
	defer timer.ObserveDuration()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		metrics.TrackStoreError("fetch", tasksCollection)
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []model.Task
	if err := cursor.All(ctx, &tasks); err != nil {
		metrics.TrackStoreError("fetch", tasksCollection)
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	return tasks, nil
}

func (r *MongoTaskRepository) InsertTask(ctx context.Context, task *model.Task) (*model.Task, error) {
	timer := metrics.TrackStoreOperation("insert", tasksCollection)
	defer timer.ObserveDuration()

	created := stampNew(*task, task.UserID)
	if _, err := r.coll.InsertOne(ctx, created); err != nil {
		metrics.TrackStoreError("insert", tasksCollection)
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &created, nil
}

func (r *MongoTaskRepository) InsertTasks(ctx context.Context, userID string, tasks []model.Task) ([]model.Task, error) {
	timer := metrics.TrackStoreOperation("insert_many", tasksCollection)
	defer timer.ObserveDuration()

	if len(tasks) == 0 {
		return nil, nil
	}
	created := make([]model.Task, len(tasks))
	docs := make([]interface{}, len(tasks))
	for i, task := range tasks {
		created[i] = stampNew(task, userID)
		docs[i] = created[i]
	}
	if _, err := r.coll.InsertMany(ctx, docs); err != nil {
		metrics.TrackStoreError("insert_many", tasksCollection)
		return nil, fmt.Errorf("create tasks: %w", err)
	}
	return created, nil
}

func (r *MongoTaskRepository) UpdateTask(ctx context.Context, userID, taskID string, patch model.TaskPatch) error {
	timer := metrics.TrackStoreOperation("update", tasksCollection)
	defer timer.ObserveDuration()

	set := bson.M{"updated_at": time.Now()}
	unset := bson.M{}
	for key, value := range patch.Fields() {
		if value == nil {
			unset[key] = ""
			continue
		}
		set[key] = value
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": taskID, "user_id": userID}, update)
	if err != nil {
		metrics.TrackStoreError("update", tasksCollection)
		return fmt.Errorf("update task: %w", err)
	}
	if res.MatchedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *MongoTaskRepository) ResetDailyTasks(ctx context.Context, userID string) error {
	timer := metrics.TrackStoreOperation("reset", tasksCollection)
	defer timer.ObserveDuration()

	_, err := r.coll.UpdateMany(ctx,
		bson.M{"user_id": userID, "type": model.CategoryDaily},
		bson.M{
			"$set":   bson.M{"completed": false, "updated_at": time.Now()},
			"$unset": bson.M{"completed_at": ""},
		})
	if err != nil {
		metrics.TrackStoreError("reset", tasksCollection)
		return fmt.Errorf("reset daily tasks: %w", err)
	}
	return nil
}

func (r *MongoTaskRepository) DeleteTask(ctx context.Context, userID, taskID string) error {
	timer := metrics.TrackStoreOperation("delete", tasksCollection)
	defer timer.ObserveDuration()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": taskID, "user_id": userID})
	if err != nil {
		metrics.TrackStoreError("delete", tasksCollection)
		return fmt.Errorf("delete task: %w", err)
	}
	if res.DeletedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}

// UpsertTasks replaces tasks by id for userID. Ids owned by someone else are re-keyed.
func (r *MongoTaskRepository) UpsertTasks(ctx context.Context, userID string, tasks []model.Task) ([]model.Task, error) {
	timer := metrics.TrackStoreOperation("upsert", tasksCollection)
	defer timer.ObserveDuration()

	if len(tasks) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		if task.ID != "" {
			ids = append(ids, task.ID)
		}
	}
	foreign := make(map[string]struct{})
	if len(ids) > 0 {
		taken, err := r.coll.Distinct(ctx, "_id", bson.M{"_id": bson.M{"$in": ids}, "user_id": bson.M{"$ne": userID}})
		if err != nil {
			metrics.TrackStoreError("upsert", tasksCollection)
			return nil, fmt.Errorf("check task owners: %w", err)
		}
		for _, v := range taken {
			if id, ok := v.(string); ok {
				foreign[id] = struct{}{}
			}
		}
	}

	now := time.Now()
	out := make([]model.Task, len(tasks))
	writes := make([]mongo.WriteModel, 0, len(tasks))
	seen := make(map[string]struct{}, len(tasks))
	for i, task := range tasks {
		_, isForeign := foreign[task.ID]
		_, dup := seen[task.ID]
		if task.ID == "" || isForeign || dup {
			task.ID = uuid.NewString()
		}
		seen[task.ID] = struct{}{}
		task.UserID = userID
		if task.CreatedAt.IsZero() {
			task.CreatedAt = now
		}
		task.UpdatedAt = now
		out[i] = task
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": task.ID, "user_id": userID}).
			SetReplacement(task).
			SetUpsert(true))
	}

	if _, err := r.coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true)); err != nil {
		metrics.TrackStoreError("upsert", tasksCollection)
		return nil, fmt.Errorf("upsert tasks: %w", err)
	}
	return out, nil
}

func stampNew(task model.Task, userID string) model.Task {
	now := time.Now()
	task.ID = uuid.NewString()
	task.UserID = userID
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	return task
}

// MongoSettingsRepository is the mongo-backed settings store, keyed by user id.
type MongoSettingsRepository struct {
	coll *mongo.Collection
}

func NewMongoSettingsRepository(db *mongo.Database) *MongoSettingsRepository {
	return &MongoSettingsRepository{coll: db.Collection(settingsCollection)}
}

func (r *MongoSettingsRepository) FetchSettings(ctx context.Context, userID string) (*model.Settings, error) {
	timer := metrics.TrackStoreOperation("fetch", settingsCollection)
	defer timer.ObserveDuration()

	var settings model.Settings
	if err := r.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&settings); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrNotFound
		}
		metrics.TrackStoreError("fetch", settingsCollection)
		return nil, fmt.Errorf("fetch settings: %w", err)
	}
	return &settings, nil
}

func (r *MongoSettingsRepository) CreateSettings(ctx context.Context, settings *model.Settings) error {
	timer := metrics.TrackStoreOperation("insert", settingsCollection)
	defer timer.ObserveDuration()

	now := time.Now()
	settings.CreatedAt = now
	settings.UpdatedAt = now
	if _, err := r.coll.InsertOne(ctx, settings); err != nil {
		metrics.TrackStoreError("insert", settingsCollection)
		return fmt.Errorf("create settings: %w", err)
	}
	return nil
}

func (r *MongoSettingsRepository) UpdateSettings(ctx context.Context, userID string, patch model.SettingsPatch) error {
	timer := metrics.TrackStoreOperation("update", settingsCollection)
	defer timer.ObserveDuration()

	if patch.Empty() {
		return nil
	}
	set := bson.M{"updated_at": time.Now()}
	for key, value := range patch.Fields() {
		set[key] = value
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": set})
	if err != nil {
		metrics.TrackStoreError("update", settingsCollection)
		return fmt.Errorf("update settings: %w", err)
	}
	if res.MatchedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}

const usersCollection = "users"

// MongoUserRepository keeps Telegram identities when mongo is the configured store.
type MongoUserRepository struct {
	coll *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{coll: db.Collection(usersCollection)}
}

func (r *MongoUserRepository) UpsertFromTelegram(ctx context.Context, telegramID int64, firstName, lastName, username string) (*model.User, error) {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"first_name": firstName,
			"last_name":  lastName,
			"username":   username,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var user model.User
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"telegram_id": telegramID}, update, opts).Decode(&user); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &user, nil
}

func (r *MongoUserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.coll.FindOne(ctx, bson.M{"telegram_id": telegramID}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (r *MongoUserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	cursor, err := r.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []model.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}
