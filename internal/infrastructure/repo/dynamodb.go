package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"craftshop-backend/internal/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// DynamoAPI is the subset of the DynamoDB client the repo uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// UserIndex is the GSI on orders: partition userId, sort createdAt.
const UserIndex = "userId-createdAt-index"

// timeLayout keeps createdAt lexically sortable for the user index.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const (
	condNotExists = "attribute_not_exists(id)"
	condExists    = "attribute_exists(id)"
	condVersion   = "attribute_exists(id) AND version = :v"
)

type DynamoRepo struct {
	client        DynamoAPI
	ordersTable   string
	productsTable string
}

func NewDynamoRepo(client DynamoAPI, ordersTable, productsTable string) *DynamoRepo {
	return &DynamoRepo{client: client, ordersTable: ordersTable, productsTable: productsTable}
}

type productRecord struct {
	ID          string   `dynamodbav:"id"`
	Name        string   `dynamodbav:"name"`
	Description string   `dynamodbav:"description"`
	Price       string   `dynamodbav:"price"`
	Category    string   `dynamodbav:"category"`
	Images      []string `dynamodbav:"images"`
	Bestseller  bool     `dynamodbav:"bestseller"`
	CreatedAt   string   `dynamodbav:"createdAt"`
}

type itemRecord struct {
	ProductID string `dynamodbav:"productId"`
	Name      string `dynamodbav:"name"`
	Price     string `dynamodbav:"price"`
	Quantity  int    `dynamodbav:"quantity"`
	Image     string `dynamodbav:"image,omitempty"`
}

type addressRecord struct {
	FirstName string `dynamodbav:"firstName"`
	LastName  string `dynamodbav:"lastName"`
	Email     string `dynamodbav:"email"`
	Phone     string `dynamodbav:"phone"`
	Street    string `dynamodbav:"street"`
	City      string `dynamodbav:"city"`
	State     string `dynamodbav:"state"`
	Zipcode   string `dynamodbav:"zipcode"`
	Country   string `dynamodbav:"country"`
}

type orderRecord struct {
	ID               string        `dynamodbav:"id"`
	UserID           string        `dynamodbav:"userId"`
	Items            []itemRecord  `dynamodbav:"items"`
	Amount           string        `dynamodbav:"amount"`
	DeliveryFee      string        `dynamodbav:"deliveryFee"`
	Address          addressRecord `dynamodbav:"address"`
	PaymentMethod    string        `dynamodbav:"paymentMethod"`
	PaymentStatus    string        `dynamodbav:"paymentStatus"`
	Status           string        `dynamodbav:"status"`
	GatewayOrderID   string        `dynamodbav:"gatewayOrderId,omitempty"`
	GatewayPaymentID string        `dynamodbav:"gatewayPaymentId,omitempty"`
	Version          int64         `dynamodbav:"version"`
	CreatedAt        string        `dynamodbav:"createdAt"`
	UpdatedAt        string        `dynamodbav:"updatedAt"`
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func toProductRecord(p *domain.Product) productRecord {
	return productRecord{
		ID: p.ID, Name: p.Name, Description: p.Description, Price: p.Price.String(),
		Category: p.Category, Images: p.Images, Bestseller: p.Bestseller, CreatedAt: formatTime(p.CreatedAt),
	}
}

func (r productRecord) toDomain() (*domain.Product, error) {
	price, err := parseDecimal(r.Price)
	if err != nil {
		return nil, fmt.Errorf("product %s price: %w", r.ID, err)
	}
	return &domain.Product{
		ID: r.ID, Name: r.Name, Description: r.Description, Price: price,
		Category: r.Category, Images: r.Images, Bestseller: r.Bestseller, CreatedAt: parseTime(r.CreatedAt),
	}, nil
}

func toOrderRecord(o *domain.Order) orderRecord {
	items := make([]itemRecord, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, itemRecord{ProductID: it.ProductID, Name: it.Name, Price: it.Price.String(), Quantity: it.Quantity, Image: it.Image})
	}
	a := o.Address
	return orderRecord{
		ID:     o.ID,
		UserID: o.UserID,
		Items:  items,
		Amount: o.Amount.String(), DeliveryFee: o.DeliveryFee.String(),
		Address: addressRecord{
			FirstName: a.FirstName, LastName: a.LastName, Email: a.Email, Phone: a.Phone,
			Street: a.Street, City: a.City, State: a.State, Zipcode: a.Zipcode, Country: a.Country,
		},
		PaymentMethod:    string(o.PaymentMethod),
		PaymentStatus:    string(o.PaymentStatus),
		Status:           string(o.Status),
		GatewayOrderID:   o.GatewayOrderID,
		GatewayPaymentID: o.GatewayPaymentID,
		Version:          o.Version,
		CreatedAt:        formatTime(o.CreatedAt),
		UpdatedAt:        formatTime(o.UpdatedAt),
	}
}

func (r orderRecord) toDomain() (*domain.Order, error) {
	amount, err := parseDecimal(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("order %s amount: %w", r.ID, err)
	}
	fee, err := parseDecimal(r.DeliveryFee)
	if err != nil {
		return nil, fmt.Errorf("order %s delivery fee: %w", r.ID, err)
	}
	items := make([]domain.OrderItem, 0, len(r.Items))
	for _, it := range r.Items {
		price, err := parseDecimal(it.Price)
		if err != nil {
			return nil, fmt.Errorf("order %s item price: %w", r.ID, err)
		}
		items = append(items, domain.OrderItem{ProductID: it.ProductID, Name: it.Name, Price: price, Quantity: it.Quantity, Image: it.Image})
	}
	a := r.Address
	return &domain.Order{
		ID:          r.ID,
		UserID:      r.UserID,
		Items:       items,
		Amount:      amount,
		DeliveryFee: fee,
		Address: domain.ShippingAddress{
			FirstName: a.FirstName, LastName: a.LastName, Email: a.Email, Phone: a.Phone,
			Street: a.Street, City: a.City, State: a.State, Zipcode: a.Zipcode, Country: a.Country,
		},
		PaymentMethod:    domain.PaymentMethod(r.PaymentMethod),
		PaymentStatus:    domain.PaymentStatus(r.PaymentStatus),
		Status:           domain.OrderStatus(r.Status),
		GatewayOrderID:   r.GatewayOrderID,
		GatewayPaymentID: r.GatewayPaymentID,
		Version:          r.Version,
		CreatedAt:        parseTime(r.CreatedAt),
		UpdatedAt:        parseTime(r.UpdatedAt),
	}, nil
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func (r *DynamoRepo) PutProduct(ctx context.Context, p *domain.Product) error {
	item, err := attributevalue.MarshalMap(toProductRecord(p))
	if err != nil {
		return err
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(r.productsTable), Item: item})
	return err
}

func (r *DynamoRepo) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{TableName: aws.String(r.productsTable), Key: idKey(id)})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, domain.ErrNotFound
	}
	var rec productRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, err
	}
	return rec.toDomain()
}

func (r *DynamoRepo) ListProducts(ctx context.Context) ([]domain.Product, error) {
	items, err := r.scanAll(ctx, r.productsTable)
	if err != nil {
		return nil, err
	}
	var recs []productRecord
	if err := attributevalue.UnmarshalListOfMaps(items, &recs); err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(recs))
	for _, rec := range recs {
		p, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	sortProducts(out)
	return out, nil
}

func (r *DynamoRepo) DeleteProduct(ctx context.Context, id string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.productsTable),
		Key:                 idKey(id),
		ConditionExpression: aws.String(condExists),
	})
	if isConditionFailed(err) {
		return domain.ErrNotFound
	}
	return err
}

func (r *DynamoRepo) InsertOrder(ctx context.Context, o *domain.Order) error {
	item, err := attributevalue.MarshalMap(toOrderRecord(o))
	if err != nil {
		return err
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.ordersTable),
		Item:                item,
		ConditionExpression: aws.String(condNotExists),
	})
	if isConditionFailed(err) {
		return domain.ErrDuplicate
	}
	return err
}

func (r *DynamoRepo) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.ordersTable),
		Key:            idKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, domain.ErrNotFound
	}
	return unmarshalOrder(out.Item)
}

func unmarshalOrder(item map[string]types.AttributeValue) (*domain.Order, error) {
	var rec orderRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, err
	}
	return rec.toDomain()
}

func (r *DynamoRepo) UpdateOrderStatus(ctx context.Context, id string, version int64, status domain.OrderStatus, at time.Time) (*domain.Order, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.ordersTable),
		Key:                 idKey(id),
		ConditionExpression: aws.String(condVersion),
		UpdateExpression:    aws.String("SET #s = :s, updatedAt = :t, version = version + :one"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s":   &types.AttributeValueMemberS{Value: string(status)},
			":t":   &types.AttributeValueMemberS{Value: formatTime(at)},
			":v":   &types.AttributeValueMemberN{Value: strconv.FormatInt(version, 10)},
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		if _, getErr := r.GetOrder(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrStaleVersion
	}
	if err != nil {
		return nil, err
	}
	return unmarshalOrder(out.Attributes)
}

func (r *DynamoRepo) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	var out []domain.Order
	var start map[string]types.AttributeValue
	for {
		page, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.ordersTable),
			IndexName:              aws.String(UserIndex),
			KeyConditionExpression: aws.String("userId = :u"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":u": &types.AttributeValueMemberS{Value: userID},
			},
			ScanIndexForward:  aws.Bool(false),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			o, err := unmarshalOrder(item)
			if err != nil {
				return nil, err
			}
			out = append(out, *o)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		start = page.LastEvaluatedKey
	}
	if out == nil {
		out = []domain.Order{}
	}
	sortOrders(out)
	return out, nil
}

// ListOrders scans the table. The admin view is small enough that sorting
// and paging in process is fine.
func (r *DynamoRepo) ListOrders(ctx context.Context, page, pageSize int) ([]domain.Order, int, error) {
	items, err := r.scanAll(ctx, r.ordersTable)
	if err != nil {
		return nil, 0, err
	}
	all := make([]domain.Order, 0, len(items))
	for _, item := range items {
		o, err := unmarshalOrder(item)
		if err != nil {
			return nil, 0, err
		}
		all = append(all, *o)
	}
	sortOrders(all)
	out, total := paginate(all, page, pageSize)
	return out, total, nil
}

func (r *DynamoRepo) scanAll(ctx context.Context, table string) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	var start map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String(table), ExclusiveStartKey: start})
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		start = out.LastEvaluatedKey
	}
}
