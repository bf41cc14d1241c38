package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/tailor-orderflow/internal/aws"
	"github.com/shopspring/decimal"
)

// Secondary indexes the DynamoDB tables are provisioned with.
const (
	ParentOrderIndex   = "parent_order_id-index" // orders: parent_order_id (HASH)
	ApprovalOrderIndex = "order_id-index"        // approvals: order_id (HASH)
)

// Tables names the DynamoDB tables backing the store.
type Tables struct {
	Orders    string
	Vendors   string
	Approvals string
}

// DynamoStore implements Store on DynamoDB. Conditional writes use
// ConditionExpression and multi-record commits use TransactWriteItems.
type DynamoStore struct {
	client  aws.DynamoDBAPI
	tables  Tables
	nowFunc func() time.Time
}

// NewDynamoStore creates a new DynamoDB backed Store.
func NewDynamoStore(client aws.DynamoDBAPI, tables Tables) *DynamoStore {
	return &DynamoStore{
		client:  client,
		tables:  tables,
		nowFunc: time.Now,
	}
}

// GetOrder fetches an order by order_id with a strongly consistent read.
func (s *DynamoStore) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tables.Orders,
		Key:            stringKey(AttrOrderID, orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, &StoreError{Op: "get order", Err: err}
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, &StoreError{Op: "unmarshal order", Err: err}
	}
	return &o, nil
}

// ListOrders returns orders matching filter. Sub-orders of a parent are read
// through the parent index, everything else is a filtered scan.
func (s *DynamoStore) ListOrders(ctx context.Context, filter Filter) ([]Order, error) {
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	var conds []string
	add := func(attr string, v types.AttributeValue) {
		n := fmt.Sprintf("#f%d", len(conds))
		p := fmt.Sprintf(":f%d", len(conds))
		names[n] = attr
		values[p] = v
		conds = append(conds, n+" = "+p)
	}
	if filter.IsB2B != nil {
		add("is_b2b", &types.AttributeValueMemberBOOL{Value: *filter.IsB2B})
	}
	if filter.VendorID != "" {
		add("vendor_id", stringValue(filter.VendorID))
	}
	if filter.Status != "" {
		add(AttrStatus, stringValue(string(filter.Status)))
	}
	if filter.ApprovalStatus != "" {
		add(AttrApprovalStatus, stringValue(string(filter.ApprovalStatus)))
	}
	if filter.ProductionStatus != "" {
		add(AttrProductionStatus, stringValue(string(filter.ProductionStatus)))
	}

	var filterExpr *string
	if len(conds) > 0 {
		filterExpr = awsString(strings.Join(conds, " AND "))
	}

	var (
		result []Order
		start  map[string]types.AttributeValue
	)
	for {
		var (
			items []map[string]types.AttributeValue
			last  map[string]types.AttributeValue
		)
		if filter.ParentOrderID != "" {
			names["#parent"] = AttrParentOrderID
			values[":parent"] = stringValue(filter.ParentOrderID)
			out, err := s.client.Query(ctx, &dyn.QueryInput{
				TableName:                 &s.tables.Orders,
				IndexName:                 awsString(ParentOrderIndex),
				KeyConditionExpression:    awsString("#parent = :parent"),
				FilterExpression:          filterExpr,
				ExpressionAttributeNames:  names,
				ExpressionAttributeValues: values,
				ExclusiveStartKey:         start,
			})
			if err != nil {
				return nil, &StoreError{Op: "query orders", Err: err}
			}
			items, last = out.Items, out.LastEvaluatedKey
		} else {
			input := &dyn.ScanInput{
				TableName:         &s.tables.Orders,
				FilterExpression:  filterExpr,
				ExclusiveStartKey: start,
				ConsistentRead:    awsBool(true),
			}
			if len(names) > 0 {
				input.ExpressionAttributeNames = names
				input.ExpressionAttributeValues = values
			}
			out, err := s.client.Scan(ctx, input)
			if err != nil {
				return nil, &StoreError{Op: "scan orders", Err: err}
			}
			items, last = out.Items, out.LastEvaluatedKey
		}

		var page []Order
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return nil, &StoreError{Op: "unmarshal orders", Err: err}
		}
		result = append(result, page...)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			return result[:filter.Limit], nil
		}
		if len(last) == 0 {
			return result, nil
		}
		start = last
	}
}

// InsertOrder writes a new order; it fails with ErrConflict if order_id is taken.
func (s *DynamoStore) InsertOrder(ctx context.Context, order Order) error {
	put, err := s.orderPut(order)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           put.TableName,
		Item:                put.Item,
		ConditionExpression: put.ConditionExpression,
	})
	if err != nil {
		return translateWriteErr("put order", err)
	}
	return nil
}

// UpdateOrder applies patch if the stored order still matches expect.
// Returns ErrConflict if the condition failed.
func (s *DynamoStore) UpdateOrder(ctx context.Context, orderID string, patch Patch, expect Expect) error {
	expr, err := s.orderUpdateExpr(patch, expect)
	if err != nil {
		return err
	}
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tables.Orders,
		Key:                       stringKey(AttrOrderID, orderID),
		UpdateExpression:          &expr.update,
		ConditionExpression:       &expr.condition,
		ExpressionAttributeNames:  expr.names,
		ExpressionAttributeValues: expr.values,
	})
	if err != nil {
		return translateWriteErr("update order", err)
	}
	return nil
}

// CountAlterations counts alteration sub-orders of one parent line item.
func (s *DynamoStore) CountAlterations(ctx context.Context, parentOrderID string, itemIndex int) (int, error) {
	var (
		total int
		start map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tables.Orders,
			IndexName:              awsString(ParentOrderIndex),
			KeyConditionExpression: awsString("#parent = :parent"),
			FilterExpression:       awsString("#idx = :idx AND #alt = :true"),
			ExpressionAttributeNames: map[string]string{
				"#parent": AttrParentOrderID,
				"#idx":    AttrParentItemIndex,
				"#alt":    AttrIsAlteration,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":parent": stringValue(parentOrderID),
				":idx":    numberValue(strconv.Itoa(itemIndex)),
				":true":   &types.AttributeValueMemberBOOL{Value: true},
			},
			Select:            types.SelectCount,
			ExclusiveStartKey: start,
		})
		if err != nil {
			return 0, &StoreError{Op: "count alterations", Err: err}
		}
		total += int(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		start = out.LastEvaluatedKey
	}
}

// GetVendor fetches a vendor by vendor_id.
func (s *DynamoStore) GetVendor(ctx context.Context, vendorID string) (*Vendor, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tables.Vendors,
		Key:            stringKey("vendor_id", vendorID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, &StoreError{Op: "get vendor", Err: err}
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var v Vendor
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return nil, &StoreError{Op: "unmarshal vendor", Err: err}
	}
	return &v, nil
}

// PutVendor upserts a vendor's name and credit limit. current_credit_used
// takes vendor.CurrentCreditUsed only when the vendor is new; afterwards it
// moves through UpdateVendorCredit alone.
func (s *DynamoStore) PutVendor(ctx context.Context, vendor Vendor) error {
	used, err := attributevalue.Marshal(vendor.CurrentCreditUsed)
	if err != nil {
		return &StoreError{Op: "marshal vendor", Err: err}
	}
	limit, err := attributevalue.Marshal(vendor.CreditLimit)
	if err != nil {
		return &StoreError{Op: "marshal vendor", Err: err}
	}
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tables.Vendors,
		Key: map[string]types.AttributeValue{
			"vendor_id": &types.AttributeValueMemberS{Value: vendor.VendorID},
		},
		UpdateExpression: awsString("SET #n = :name, credit_limit = :limit, current_credit_used = if_not_exists(current_credit_used, :used), updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#n": "name",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":name":  &types.AttributeValueMemberS{Value: vendor.Name},
			":limit": limit,
			":used":  used,
			":ua":    &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return &StoreError{Op: "put vendor", Err: err}
	}
	return nil
}

// UpdateVendorCredit atomically adds delta to current_credit_used.
func (s *DynamoStore) UpdateVendorCredit(ctx context.Context, vendorID string, delta decimal.Decimal) error {
	upd, err := s.creditUpdate(CreditIncrement{VendorID: vendorID, Amount: delta})
	if err != nil {
		return err
	}
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 upd.TableName,
		Key:                       upd.Key,
		UpdateExpression:          upd.UpdateExpression,
		ConditionExpression:       upd.ConditionExpression,
		ExpressionAttributeNames:  upd.ExpressionAttributeNames,
		ExpressionAttributeValues: upd.ExpressionAttributeValues,
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return ErrNotFound
		}
		return &StoreError{Op: "update vendor credit", Err: err}
	}
	return nil
}

// ListApprovalRecords returns the approval history of an order, oldest first.
func (s *DynamoStore) ListApprovalRecords(ctx context.Context, orderID string) ([]ApprovalRecord, error) {
	var (
		records []ApprovalRecord
		start   map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:                 &s.tables.Approvals,
			IndexName:                 awsString(ApprovalOrderIndex),
			KeyConditionExpression:    awsString("#o = :o"),
			ExpressionAttributeNames:  map[string]string{"#o": "order_id"},
			ExpressionAttributeValues: map[string]types.AttributeValue{":o": stringValue(orderID)},
			ExclusiveStartKey:         start,
		})
		if err != nil {
			return nil, &StoreError{Op: "query approvals", Err: err}
		}
		var page []ApprovalRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, &StoreError{Op: "unmarshal approvals", Err: err}
		}
		records = append(records, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	sortRecords(records)
	return records, nil
}

// Commit writes every part of m in one TransactWriteItems call.
// Any failed condition cancels the whole transaction and yields ErrConflict.
func (s *DynamoStore) Commit(ctx context.Context, m Mutation) error {
	var items []types.TransactWriteItem

	if m.Update != nil {
		expr, err := s.orderUpdateExpr(m.Update.Patch, m.Update.Expect)
		if err != nil {
			return err
		}
		items = append(items, types.TransactWriteItem{Update: &types.Update{
			TableName:                 &s.tables.Orders,
			Key:                       stringKey(AttrOrderID, m.Update.OrderID),
			UpdateExpression:          &expr.update,
			ConditionExpression:       &expr.condition,
			ExpressionAttributeNames:  expr.names,
			ExpressionAttributeValues: expr.values,
		}})
	}
	if m.Check != nil {
		names := map[string]string{}
		values := map[string]types.AttributeValue{}
		cond := expectCondition(m.Check.Expect, names, values)
		items = append(items, types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
			TableName:                 &s.tables.Orders,
			Key:                       stringKey(AttrOrderID, m.Check.OrderID),
			ConditionExpression:       &cond,
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		}})
	}
	if m.Insert != nil {
		put, err := s.orderPut(*m.Insert)
		if err != nil {
			return err
		}
		items = append(items, types.TransactWriteItem{Put: put})
	}
	if m.Credit != nil {
		upd, err := s.creditUpdate(*m.Credit)
		if err != nil {
			return err
		}
		items = append(items, types.TransactWriteItem{Update: upd})
	}
	if m.NewRecord != nil {
		item, err := attributevalue.MarshalMap(*m.NewRecord)
		if err != nil {
			return &StoreError{Op: "marshal approval record", Err: err}
		}
		items = append(items, types.TransactWriteItem{Put: &types.Put{
			TableName:           &s.tables.Approvals,
			Item:                item,
			ConditionExpression: awsString("attribute_not_exists(record_id)"),
		}})
	}
	if m.Review != nil {
		reviewedAt, err := attributevalue.Marshal(s.nowFunc().UTC())
		if err != nil {
			return &StoreError{Op: "marshal review time", Err: err}
		}
		items = append(items, types.TransactWriteItem{Update: &types.Update{
			TableName:           &s.tables.Approvals,
			Key:                 stringKey("record_id", m.Review.RecordID),
			UpdateExpression:    awsString("SET #s = :new, reviewed_by = :rb, reviewed_at = :ra, notes = :n"),
			ConditionExpression: awsString("#s = :pending"),
			ExpressionAttributeNames: map[string]string{
				"#s": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":new":     stringValue(string(m.Review.Status)),
				":pending": stringValue(string(ApprovalPending)),
				":rb":      stringValue(m.Review.ReviewedBy),
				":ra":      reviewedAt,
				":n":       stringValue(m.Review.Notes),
			},
		}})
	}

	if len(items) == 0 {
		return nil
	}

	_, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			for _, r := range tce.CancellationReasons {
				if r.Code != nil && *r.Code == "ConditionalCheckFailed" {
					return ErrConflict
				}
			}
			if len(tce.CancellationReasons) == 0 {
				return ErrConflict
			}
		}
		return &StoreError{Op: "transact write", Err: err}
	}
	return nil
}

type updateExpr struct {
	update    string
	condition string
	names     map[string]string
	values    map[string]types.AttributeValue
}

// orderUpdateExpr turns a patch into a SET expression that also bumps the
// version, guarded by expect.
func (s *DynamoStore) orderUpdateExpr(patch Patch, expect Expect) (updateExpr, error) {
	now, err := attributevalue.Marshal(s.nowFunc().UTC())
	if err != nil {
		return updateExpr{}, &StoreError{Op: "marshal updated_at", Err: err}
	}
	expr := updateExpr{
		names: map[string]string{
			"#ua": AttrUpdatedAt,
		},
		values: map[string]types.AttributeValue{
			":ua": now,
		},
	}
	sets := []string{"#ua = :ua"}

	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		switch k {
		case AttrOrderID, AttrVersion, AttrUpdatedAt:
			continue
		}
		av, err := attributevalue.Marshal(patch[k])
		if err != nil {
			return updateExpr{}, &StoreError{Op: "marshal " + k, Err: err}
		}
		n := fmt.Sprintf("#p%d", i)
		v := fmt.Sprintf(":p%d", i)
		expr.names[n] = k
		expr.values[v] = av
		sets = append(sets, n+" = "+v)
	}

	expr.condition = expectCondition(expect, expr.names, expr.values)
	expr.values[":nextver"] = numberValue(strconv.FormatInt(expect.Version+1, 10))
	sets = append(sets, "#ver = :nextver")
	expr.update = "SET " + strings.Join(sets, ", ")
	return expr, nil
}

// expectCondition renders expect into a condition expression, registering
// its placeholders in names and values.
func expectCondition(expect Expect, names map[string]string, values map[string]types.AttributeValue) string {
	names["#ver"] = AttrVersion
	values[":ver"] = numberValue(strconv.FormatInt(expect.Version, 10))
	conds := []string{"#ver = :ver"}
	if expect.Field != "" {
		names["#exp"] = expect.Field
		values[":expected"] = stringValue(expect.Value)
		conds = append(conds, "#exp = :expected")
	}
	if expect.CreditNotApplied {
		names["#ca"] = AttrCreditApplied
		values[":false"] = &types.AttributeValueMemberBOOL{Value: false}
		conds = append(conds, "(attribute_not_exists(#ca) OR #ca = :false)")
	}
	return strings.Join(conds, " AND ")
}

func (s *DynamoStore) orderPut(order Order) (*types.Put, error) {
	now := s.nowFunc().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if order.Version == 0 {
		order.Version = 1
	}
	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return nil, &StoreError{Op: "marshal order", Err: err}
	}
	return &types.Put{
		TableName:           &s.tables.Orders,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	}, nil
}

func (s *DynamoStore) creditUpdate(inc CreditIncrement) (*types.Update, error) {
	now, err := attributevalue.Marshal(s.nowFunc().UTC())
	if err != nil {
		return nil, &StoreError{Op: "marshal updated_at", Err: err}
	}
	return &types.Update{
		TableName:           &s.tables.Vendors,
		Key:                 stringKey("vendor_id", inc.VendorID),
		UpdateExpression:    awsString("ADD current_credit_used :delta SET updated_at = :ua"),
		ConditionExpression: awsString("attribute_exists(vendor_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":delta": numberValue(inc.Amount.StringFixed(2)),
			":ua":    now,
		},
	}, nil
}

// translateWriteErr maps a failed condition to ErrConflict.
func translateWriteErr(op string, err error) error {
	var cf *types.ConditionalCheckFailedException
	if errors.As(err, &cf) {
		return ErrConflict
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException" {
		return ErrConflict
	}
	return &StoreError{Op: op, Err: err}
}

func sortRecords(records []ApprovalRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].SubmittedAt.Equal(records[j].SubmittedAt) {
			return records[i].RecordID < records[j].RecordID
		}
		return records[i].SubmittedAt.Before(records[j].SubmittedAt)
	})
}

func stringKey(attr, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{attr: stringValue(value)}
}

func stringValue(s string) types.AttributeValue { return &types.AttributeValueMemberS{Value: s} }

func numberValue(n string) types.AttributeValue { return &types.AttributeValueMemberN{Value: n} }

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
